// browserflow 命令行入口：加载配置，组装编排器，执行一条
// 自然语言浏览器任务。
//
// 用法:
//
//	browserflow [-config config.yaml] "find the cheapest flight on expedia"
//	browserflow [-config config.yaml] validate
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/browserflow/browser"
	"github.com/BaSui01/browserflow/config"
	"github.com/BaSui01/browserflow/internal/metrics"
	"github.com/BaSui01/browserflow/internal/telemetry"
	"github.com/BaSui01/browserflow/llm"
	llmcache "github.com/BaSui01/browserflow/llm/cache"
	"github.com/BaSui01/browserflow/llm/providers/gemini"
	"github.com/BaSui01/browserflow/llm/providers/groq"
	"github.com/BaSui01/browserflow/llm/providers/ollama"
	"github.com/BaSui01/browserflow/llm/providers/sambanova"
	"github.com/BaSui01/browserflow/rag"
	"github.com/BaSui01/browserflow/workflow"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML 配置文件路径")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics 监听地址（为空则不启动）")
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "validate" {
		printValidation(cfg)
		return 0
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: browserflow [-config config.yaml] \"<instruction>\"")
		return 2
	}
	instruction := strings.Join(args, " ")

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Error("telemetry init failed", zap.Error(err))
		return 1
	}
	defer providers.Shutdown(context.Background()) //nolint:errcheck

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	orch := assemble(cfg, logger)
	result := orch.Run(ctx, instruction)
	if result.Error != "" {
		fmt.Fprintln(os.Stderr, result.Error)
		return 1
	}
	fmt.Println(result.Output)
	return 0
}

// printValidation 打印各能力在当前配置下的可用凭证情况。
func printValidation(cfg *config.Config) {
	fmt.Println("configuration OK")
	fmt.Printf("  gemini keys:      %d\n", len(cfg.Providers.GeminiKeys))
	fmt.Printf("  groq keys:        %d\n", len(cfg.Providers.GroqKeys))
	fmt.Printf("  sambanova keys:   %d\n", len(cfg.Providers.SambanovaKeys))
	if cfg.Providers.OllamaEndpoint != "" {
		fmt.Printf("  ollama endpoint:  %s\n", cfg.Providers.OllamaEndpoint)
	} else {
		fmt.Println("  ollama endpoint:  (not set)")
	}
	if cfg.Search.APIKey != "" {
		fmt.Println("  web search:       enabled")
	} else {
		fmt.Println("  web search:       disabled (no API key)")
	}
	if cfg.Memory.Path != "" {
		fmt.Printf("  memory store:     %s\n", cfg.Memory.Path)
	} else {
		fmt.Println("  memory store:     in-memory")
	}
	if cfg.Redis.Addr != "" {
		fmt.Printf("  response cache:   redis %s\n", cfg.Redis.Addr)
	} else {
		fmt.Println("  response cache:   disabled")
	}
}

// assemble 按配置组装全部依赖并返回编排器。
func assemble(cfg *config.Config, logger *zap.Logger) *workflow.Orchestrator {
	router := buildRouter(cfg.Providers, logger)

	manager := browser.NewManager(func(ctx context.Context) (browser.Driver, error) {
		return browser.NewChromeDPDriver(browser.Config{
			Headless:       cfg.Browser.Headless,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			UserAgent:      cfg.Browser.UserAgent,
			ReadyTimeout:   cfg.Browser.ReadyTimeout,
		}, logger)
	}, logger)

	var searcher browser.Searcher
	if s := browser.NewHTTPSearcher(cfg.Search.Endpoint, cfg.Search.APIKey, logger); s != nil {
		searcher = s
	}
	registry := browser.NewRegistry(manager, browser.NewLLMAnalyzer(router, logger), searcher, logger)

	memory := rag.NewMemory(func() (rag.VectorStore, error) {
		if cfg.Memory.Path == "" {
			return rag.NewInMemoryVectorStore(logger), nil
		}
		return rag.NewSQLiteVectorStore(cfg.Memory.Path, logger)
	}, rag.HashEmbedder{}, logger)

	var cache llmcache.ResponseCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = llmcache.NewRedisCache(client, cfg.Redis.TTL, logger)
	}

	collector := metrics.NewCollector("browserflow", nil)

	planner := workflow.NewPlanner(router, manager, memory, logger)
	executor := workflow.NewExecutor(router, registry, logger)
	formatter := workflow.NewFormatter(router, cache, logger)
	ragWorker := workflow.NewRAGWorker(memory, manager, logger)

	return workflow.NewOrchestrator(planner, executor, formatter, ragWorker, manager, collector, logger)
}

// buildRouter 按凭证注册顺序固定每种能力的轮换构建顺序。
func buildRouter(p config.ProvidersConfig, logger *zap.Logger) *llm.Router {
	geminiFam := llm.FamilyConfig{
		Name: "gemini",
		Keys: p.GeminiKeys,
		Build: func(key string) (llm.Provider, error) {
			return gemini.New(gemini.Config{APIKey: key}, logger), nil
		},
	}
	groqFam := llm.FamilyConfig{
		Name: "groq",
		Keys: p.GroqKeys,
		Build: func(key string) (llm.Provider, error) {
			return groq.New(key, "", logger), nil
		},
	}
	sambaFam := llm.FamilyConfig{
		Name: "sambanova",
		Keys: p.SambanovaKeys,
		Build: func(key string) (llm.Provider, error) {
			return sambanova.New(key, "", logger), nil
		},
	}
	groqVision := llm.FamilyConfig{
		Name: "groq",
		Keys: p.GroqKeys,
		Build: func(key string) (llm.Provider, error) {
			return groq.New(key, groq.DefaultVisionModel, logger), nil
		},
	}

	cfg := llm.RouterConfig{
		Main:      []llm.FamilyConfig{geminiFam, groqFam, sambaFam},
		Execution: []llm.FamilyConfig{geminiFam, groqFam, sambaFam},
		Vision:    []llm.FamilyConfig{geminiFam, groqVision},
	}
	if p.OllamaEndpoint != "" {
		cfg.Local = &llm.LocalConfig{
			Name: "ollama",
			Build: func() (llm.Provider, error) {
				return ollama.New(p.OllamaEndpoint, ollama.DefaultVisionModel, logger), nil
			},
		}
	}
	return llm.NewRouter(cfg, logger)
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
