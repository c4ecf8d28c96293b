package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀。
const EnvPrefix = "BROWSERFLOW"

// Loader 配置加载器。
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建加载器。
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix}
}

// WithConfigPath 指定 YAML 配置文件路径。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 覆盖环境变量前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 按 默认值 → YAML → 环境变量 的优先级加载配置并校验。
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	l.envList("GEMINI_KEYS", &cfg.Providers.GeminiKeys)
	l.envList("GROQ_KEYS", &cfg.Providers.GroqKeys)
	l.envList("SAMBANOVA_KEYS", &cfg.Providers.SambanovaKeys)
	l.envStr("OLLAMA_ENDPOINT", &cfg.Providers.OllamaEndpoint)

	l.envBool("BROWSER_HEADLESS", &cfg.Browser.Headless)
	l.envInt("BROWSER_VIEWPORT_WIDTH", &cfg.Browser.ViewportWidth)
	l.envInt("BROWSER_VIEWPORT_HEIGHT", &cfg.Browser.ViewportHeight)
	l.envStr("BROWSER_USER_AGENT", &cfg.Browser.UserAgent)
	l.envDuration("BROWSER_READY_TIMEOUT", &cfg.Browser.ReadyTimeout)

	l.envStr("MEMORY_PATH", &cfg.Memory.Path)

	l.envStr("REDIS_ADDR", &cfg.Redis.Addr)
	l.envStr("REDIS_PASSWORD", &cfg.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Redis.DB)
	l.envDuration("REDIS_TTL", &cfg.Redis.TTL)

	l.envStr("SEARCH_ENDPOINT", &cfg.Search.Endpoint)
	l.envStr("SEARCH_API_KEY", &cfg.Search.APIKey)

	l.envStr("LOG_LEVEL", &cfg.Log.Level)
	l.envStr("LOG_FORMAT", &cfg.Log.Format)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envStr("TELEMETRY_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	l.envStr("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	l.envFloat("TELEMETRY_SAMPLE_RATE", &cfg.Telemetry.SampleRate)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envStr(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

// envList 逗号分隔列表；空串表示清空。
func (l *Loader) envList(key string, dst *[]string) {
	v, ok := l.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	*dst = out
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
