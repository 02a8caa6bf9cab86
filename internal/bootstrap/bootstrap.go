package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/devops-agent/gateway/internal/clients/github"
	"github.com/devops-agent/gateway/internal/clients/slack"
	"github.com/devops-agent/gateway/internal/clients/zentao"
	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	"github.com/devops-agent/gateway/internal/platform/logging"
	"github.com/devops-agent/gateway/internal/tools"
	githubtools "github.com/devops-agent/gateway/internal/tools/github"
	slacktools "github.com/devops-agent/gateway/internal/tools/slack"
	zentaotools "github.com/devops-agent/gateway/internal/tools/zentao"
	httptransport "github.com/devops-agent/gateway/internal/transport/http"
)

const (
	serverName    = "DevOps Agent"
	serverVersion = "0.1.0"
)

// shortcuts 自然语言快捷指令提示，随 MCP instructions 下发给宿主。
const shortcuts = `

## 快捷指令（自然语言 → 自动化操作）
当用户使用以下自然语言表达时，自动执行对应的组合操作：

### 1. 创建需求 / 提需求
触发词：「创建需求」「提需求」「新需求」「需求给XX」
操作：
  ① GitHub 创建 Issue（标签: enhancement，指派给对应人）
  ② Slack 发送通知（包含需求标题、负责人、GitHub 链接）

### 2. 提 Bug / 报 Bug
触发词：「提Bug」「报Bug」「有个Bug」「发现Bug」
操作：
  ① GitHub 创建 Issue（标签: bug，指派给对应人）
  ② Slack 发送通知（包含 Bug 描述和 GitHub 链接）
  ③ 如果禅道已集成，同步在禅道创建 Bug

### 3. 创建任务 / 派任务
触发词：「创建任务」「派任务」「安排任务」「任务给XX」
操作：
  ① Slack 创建任务卡片（含负责人 @提及、优先级）
  ② GitHub 创建 Issue（标签: task）

### 4. 查看进度 / 项目状态
触发词：「查看进度」「项目状态」「最近提交」「今天做了什么」
操作：
  ① 查询 GitHub 最近的提交记录
  ② 查询未关闭的 Issue 和 PR 列表
  ③ 汇总后发送到 Slack

### 5. 发布通知 / 通知团队
触发词：「通知团队」「发布通知」「告诉大家」「广播」
操作：
  ① 将消息发送到 Slack 默认频道

### 6. 代码审查 / 查看变更
触发词：「查看代码」「代码审查」「看看改了什么」「最近的变更」
操作：
  ① 获取最近的提交记录
  ② 查看提交的 Diff 详情

## 通用规则
- 当提到人名时，尝试匹配 GitHub 用户名进行指派
- 涉及通知时，默认同步发送 Slack 消息
- 如果用户未指定仓库，使用默认仓库
- 如果用户未指定优先级，默认使用「普通」
- Slack 通知应包含操作摘要和相关链接
`

// Options 命令行覆盖项，零值表示沿用配置。
type Options struct {
	ConfigPath string
	Transport  string
	IP         string
	Port       int
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

type appState struct {
	opts Options

	config    *config.Config
	logger    *logging.Logger
	github    *github.Client
	slack     *slack.Client
	zentao    *zentao.Client
	mcpServer *server.MCPServer
	registry  *tools.Registry
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context, opts Options) error {
	state := &appState{opts: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	logger.InfoTag("引导", "DevOps Agent MCP Server 启动中...")
	logger.InfoTag("引导", "传输模式: %s", state.config.Server.Transport)
	logger.InfoTag("引导", "GitHub owner: %s", state.config.GitHub.Owner)
	logger.InfoTag("引导", "Slack 默认频道: %s", state.config.Slack.DefaultChannel)
	if state.config.ZenTaoEnabled() {
		logger.InfoTag("引导", "禅道已集成: %s", state.config.ZenTao.URL)
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return errors.New(errors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(
					errors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph 返回有序的初始化步骤。
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logger",
			DependsOn: []string{"config:load"},
			Execute:   initLoggerStep,
		},
		{
			ID:        "clients:init",
			Title:     "Initialise integration clients",
			DependsOn: []string{"config:load", "logging:init"},
			Execute:   initClientsStep,
		},
		{
			ID:        "mcp:init",
			Title:     "Initialise MCP server and tool registry",
			DependsOn: []string{"clients:init"},
			Execute:   initMCPStep,
		},
	}
}

func loadConfigStep(ctx context.Context, state *appState) error {
	loader := config.NewLoader().WithPath(state.opts.ConfigPath)

	result, err := loader.Load()
	if err != nil {
		return err
	}
	cfg := result.Config

	// 命令行覆盖优先于配置文件和环境变量
	if state.opts.Transport != "" {
		cfg.Server.Transport = state.opts.Transport
	}
	if state.opts.IP != "" {
		cfg.Server.IP = state.opts.IP
	}
	if state.opts.Port > 0 {
		cfg.Server.Port = state.opts.Port
	}
	if cfg.Server.Transport != "stdio" && cfg.Server.Transport != "sse" {
		return errors.New(errors.KindConfig, "config:load",
			fmt.Sprintf("未知的传输模式: %s（可选 stdio / sse）", cfg.Server.Transport))
	}

	state.config = cfg
	return nil
}

func initLoggerStep(ctx context.Context, state *appState) error {
	logger, err := logging.New(logging.Config{Level: state.config.Log.Level})
	if err != nil {
		return err
	}
	state.logger = logger
	return nil
}

func initClientsStep(ctx context.Context, state *appState) error {
	state.github = github.NewClient(state.config.GitHub, state.logger)
	state.slack = slack.NewClient(state.config.Slack, state.logger)
	if state.config.ZenTaoEnabled() {
		state.zentao = zentao.NewClient(state.config.ZenTao, state.logger)
	}
	return nil
}

func initMCPStep(ctx context.Context, state *appState) error {
	instructions := fmt.Sprintf(
		"DevOps Agent：集成 GitHub、Slack 和禅道的 DevOps 工具。\n"+
			"可以查询 GitHub 的提交记录、PR、Issue、代码文件，\n"+
			"发送消息到 Slack、创建和更新任务，\n"+
			"以及管理禅道的 Bug、任务、需求。\n"+
			"GitHub 默认用户: %s%s",
		state.config.GitHub.Owner, shortcuts)

	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)
	registry := tools.NewRegistry(s, state.logger)

	githubtools.Register(registry, state.github)
	slacktools.Register(registry, state.slack)
	if state.zentao != nil {
		zentaotools.Register(registry, state.zentao)
	}

	state.logger.InfoTag("引导", "已注册 %d 个工具", len(registry.Names()))
	state.mcpServer = s
	state.registry = registry
	return nil
}

func startServices(state *appState, group *errgroup.Group, ctx context.Context) error {
	cfg := state.config
	logger := state.logger

	switch cfg.Server.Transport {
	case "stdio":
		group.Go(func() error {
			stdio := server.NewStdioServer(state.mcpServer)
			if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil &&
				!stderrors.Is(err, context.Canceled) {
				return errors.Wrap(errors.KindTransport, "stdio", "stdio 服务异常退出", err)
			}
			return nil
		})
	case "sse":
		addr := cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port)
		sse := server.NewSSEServer(state.mcpServer)
		logger.InfoTag("引导", "SSE 监听地址: %s", addr)

		group.Go(func() error {
			if err := sse.Start(addr); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(errors.KindTransport, "sse", "SSE 服务异常退出", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sse.Shutdown(shutdownCtx)
		})
	default:
		return errors.New(errors.KindConfig, "start services",
			fmt.Sprintf("未知的传输模式: %s", cfg.Server.Transport))
	}

	if cfg.Web.Enabled {
		router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
		if err != nil {
			return errors.Wrap(errors.KindBootstrap, "web", "构建状态 API 失败", err)
		}
		httptransport.RegisterStatusRoutes(router, state.registry, cfg)

		webAddr := cfg.Server.IP + ":" + strconv.Itoa(cfg.Web.Port)
		srv := &http.Server{Addr: webAddr, Handler: router.Engine}
		logger.InfoTag("引导", "状态 API 监听地址: %s", webAddr)

		group.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(errors.KindTransport, "web", "状态 API 异常退出", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return nil
}

func waitForShutdown(signalCtx context.Context, cancel context.CancelFunc, logger *logging.Logger, group *errgroup.Group) error {
	waitErr := make(chan error, 1)
	go func() { waitErr <- group.Wait() }()

	var err error
	select {
	case <-signalCtx.Done():
		logger.InfoTag("引导", "收到退出信号，正在关停服务...")
		cancel()
		err = <-waitErr
	case err = <-waitErr:
		// stdio 对端关闭或某个服务出错时自行退出
		cancel()
	}

	if err != nil && !stderrors.Is(err, context.Canceled) {
		logger.ErrorTag("引导", "服务关停出错: %v", err)
		return err
	}
	logger.InfoTag("引导", "服务已退出")
	return nil
}
