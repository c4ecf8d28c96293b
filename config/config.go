// Package config 统一配置加载，支持 YAML 文件 + 环境变量覆盖。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（前缀 BROWSERFLOW_）
package config

import (
	"fmt"
	"time"
)

// Config 是 browserflow 的完整配置结构。
type Config struct {
	// Providers 各 LLM 提供商凭证
	Providers ProvidersConfig `yaml:"providers"`

	// Browser 浏览器会话配置
	Browser BrowserConfig `yaml:"browser"`

	// Memory 长期记忆存储配置
	Memory MemoryConfig `yaml:"memory"`

	// Redis 响应缓存配置
	Redis RedisConfig `yaml:"redis"`

	// Search 网页搜索配置
	Search SearchConfig `yaml:"search"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProvidersConfig 提供商凭证。每个提供商可配多个 key，
// 注册顺序即轮换构建顺序。
type ProvidersConfig struct {
	GeminiKeys     []string `yaml:"gemini_keys"`
	GroqKeys       []string `yaml:"groq_keys"`
	SambanovaKeys  []string `yaml:"sambanova_keys"`
	OllamaEndpoint string   `yaml:"ollama_endpoint"`
}

// HasRemote 报告是否配置了任何远端提供商凭证。
func (p ProvidersConfig) HasRemote() bool {
	return len(p.GeminiKeys)+len(p.GroqKeys)+len(p.SambanovaKeys) > 0
}

// BrowserConfig 浏览器会话配置。
type BrowserConfig struct {
	Headless       bool          `yaml:"headless"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	UserAgent      string        `yaml:"user_agent"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
}

// MemoryConfig 记忆存储配置。Path 为空时使用内存存储。
type MemoryConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig 响应缓存配置。Addr 为空时禁用缓存。
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SearchConfig 网页搜索配置。APIKey 为空时 web_search 工具降级。
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // json/console
}

// TelemetryConfig 遥测配置。
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default 返回全部默认值的配置。
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			OllamaEndpoint: "http://localhost:11434",
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 900,
			ReadyTimeout:   30 * time.Second,
		},
		Memory: MemoryConfig{
			Path: "browserflow_memory.db",
		},
		Redis: RedisConfig{
			TTL: time.Hour,
		},
		Search: SearchConfig{
			Endpoint: "https://api.tavily.com/search",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "browserflow",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate 校验配置的基本一致性。
func (c *Config) Validate() error {
	if !c.Providers.HasRemote() && c.Providers.OllamaEndpoint == "" {
		return fmt.Errorf("no LLM providers configured: set at least one API key or an ollama endpoint")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry enabled but otlp_endpoint is empty")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be in [0,1]")
	}
	return nil
}
