package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devops-agent/gateway/internal/platform/errors"
)

// Loader reads configuration from an optional YAML file with environment
// variables taking precedence, so each team member can keep tokens out of
// the shared config file.
type Loader struct {
	useDotEnv bool
	path      string
	env       func(string) string
}

// NewLoader creates a loader reading config.yaml from the working directory.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
		env:       os.Getenv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the YAML config file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(env func(string) string) *Loader {
	if env != nil {
		l.env = env
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads the YAML file when present, overlays environment variables and
// validates the result.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintln(os.Stderr, "未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := ""

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "解析配置文件失败", err)
		}
		path = l.path
	}

	l.overlayEnv(cfg)
	applyFallbacks(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) overlayEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := l.env(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.Owner, "GITHUB_OWNER")
	setString(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&cfg.Slack.DefaultChannel, "SLACK_DEFAULT_CHANNEL")
	setString(&cfg.ZenTao.URL, "ZENTAO_URL")
	setString(&cfg.ZenTao.Account, "ZENTAO_ACCOUNT")
	setString(&cfg.ZenTao.Password, "ZENTAO_PASSWORD")
	setString(&cfg.Server.Transport, "GATEWAY_TRANSPORT")
	setString(&cfg.Server.IP, "GATEWAY_HOST")
	setString(&cfg.Log.Level, "GATEWAY_LOG_LEVEL")

	if v := l.env("GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func applyFallbacks(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = defaults.GitHub.APIBase
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = defaults.GitHub.GraphQLURL
	}
	if cfg.Slack.APIBase == "" {
		cfg.Slack.APIBase = defaults.Slack.APIBase
	}
	if cfg.Slack.DefaultChannel == "" {
		cfg.Slack.DefaultChannel = defaults.Slack.DefaultChannel
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = defaults.Server.Transport
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
}

func validate(cfg *Config) error {
	if cfg.GitHub.Token == "" {
		return errors.New(errors.KindConfig, "validate",
			"缺少 GitHub Token！请设置环境变量 GITHUB_TOKEN 或在 config.yaml 中配置")
	}
	if cfg.Slack.BotToken == "" {
		return errors.New(errors.KindConfig, "validate",
			"缺少 Slack Bot Token！请设置环境变量 SLACK_BOT_TOKEN 或在 config.yaml 中配置")
	}
	if cfg.Server.Transport != "stdio" && cfg.Server.Transport != "sse" {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("未知传输模式: %s（支持 stdio / sse）", cfg.Server.Transport))
	}
	return nil
}
