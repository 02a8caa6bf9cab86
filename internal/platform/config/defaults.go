package config

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "stdio",
			IP:        "0.0.0.0",
			Port:      8000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Web: WebConfig{
			Enabled: false,
			Port:    8081,
		},
		GitHub: GitHubConfig{
			APIBase:    "https://api.github.com",
			GraphQLURL: "https://api.github.com/graphql",
		},
		Slack: SlackConfig{
			DefaultChannel: "#general",
			APIBase:        "https://slack.com/api",
		},
	}
}
