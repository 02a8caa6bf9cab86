package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/devops-agent/gateway/internal/bootstrap"
)

func main() {
	var opts bootstrap.Options
	flag.StringVar(&opts.ConfigPath, "config", "", "配置文件路径，默认 config.yaml")
	flag.StringVar(&opts.Transport, "transport", "", "传输模式：stdio（本地调用）或 sse（远程部署），默认 stdio")
	flag.StringVar(&opts.IP, "host", "", "SSE 模式监听地址，默认 0.0.0.0")
	flag.IntVar(&opts.Port, "port", 0, "SSE 模式监听端口，默认 8000")
	flag.Parse()

	if err := bootstrap.Run(context.Background(), opts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "devops-agent failed: %v\n", err)
		os.Exit(1)
	}
}
