package config

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Web    WebConfig    `yaml:"web"`
	GitHub GitHubConfig `yaml:"github"`
	Slack  SlackConfig  `yaml:"slack"`
	ZenTao ZenTaoConfig `yaml:"zentao"`
}

type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | sse
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
}

// WebConfig controls the gin status API served alongside the SSE transport.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type GitHubConfig struct {
	Token      string `yaml:"token"`
	Owner      string `yaml:"owner"`
	APIBase    string `yaml:"api_base"`
	GraphQLURL string `yaml:"graphql_url"`
}

type SlackConfig struct {
	BotToken       string `yaml:"bot_token"`
	DefaultChannel string `yaml:"default_channel"`
	APIBase        string `yaml:"api_base"`
}

type ZenTaoConfig struct {
	URL      string `yaml:"url"`
	Account  string `yaml:"account"`
	Password string `yaml:"password"`
}

// ZenTaoEnabled reports whether the optional issue tracker integration is
// configured. The tracker client and tools are only built when it is.
func (c *Config) ZenTaoEnabled() bool {
	return c.ZenTao.URL != "" && c.ZenTao.Account != ""
}
