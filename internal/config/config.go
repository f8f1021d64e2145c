package config

import "strings"

type Config struct {
	ConfigVersion int             `yaml:"configVersion"`
	Server        ServerConfig    `yaml:"server"`
	Upstream      Upstream        `yaml:"upstream"`
	Rules         RulesConfig     `yaml:"rules"`
	RateLimit     RateLimitConfig `yaml:"rateLimit"`
	Logging       LoggingConfig   `yaml:"logging"`
	Metrics       MetricsConfig   `yaml:"metrics"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen string    `yaml:"listen"`
	Name   string    `yaml:"name"`
	TLS    TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	URL string `yaml:"url"`
}

// RulesConfig names the rule sources loaded at startup. Files are glob
// patterns (recursive `**` supported); inline entries are SecLang lines
// loaded as one source.
type RulesConfig struct {
	Files  []string `yaml:"files"`
	Inline []string `yaml:"inline"`
}

// InlineText joins the inline rule lines into the single text the engine
// loads as a unit.
func (r RulesConfig) InlineText() string {
	return strings.Join(r.Inline, "\n")
}

type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Key        string  `yaml:"key"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	StatusCode int     `yaml:"statusCode"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DecisionLog string `yaml:"decisionLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}
