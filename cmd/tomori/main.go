package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/Eliolocin/TomoriBot-sub001/internal/config"
	"github.com/Eliolocin/TomoriBot-sub001/internal/discord"
	"github.com/Eliolocin/TomoriBot-sub001/internal/httpapi"
	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
	"github.com/Eliolocin/TomoriBot-sub001/internal/observability"
	"github.com/Eliolocin/TomoriBot-sub001/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	provider, err := llm.NewProvider(llm.Config{
		Mode:            cfg.ProviderMode,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	})
	if err != nil {
		log.Fatalf("llm provider init failed: %v", err)
	}
	log.Printf("llm provider: %s", provider.Name())

	stops := stream.NewStopRegistry(cfg.StopMaxAge)
	locks := stream.NewLockTable(cfg.LockStaleAge)

	tools := stream.NewToolRegistry()
	registerBuiltinTools(tools)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	stops.StartJanitor(runCtx, time.Minute)

	streamCfg := stream.Config{
		Segmenter: stream.SegmenterConfig{
			PlainFlushLimit: cfg.PlainFlushLimit,
			CodeFlushLimit:  cfg.CodeFlushLimit,
		},
		Typing: stream.TypingConfig{
			PerChar:      cfg.TypingPerChar,
			MinVisible:   cfg.TypingMinVisible,
			MaxTyping:    cfg.TypingMaxDuration,
			ThinkingMin:  cfg.ThinkingPauseMin,
			ThinkingMax:  cfg.ThinkingPauseMax,
			ExtendChance: cfg.ThinkingExtendChance,
		},
		MaxMessageLen:     cfg.MaxMessageLen,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxEmptyRetries:   cfg.MaxEmptyRetries,
		EmptyRetryDelay:   cfg.EmptyRetryDelay,
		MaxFunctionRounds: cfg.MaxFunctionRounds,
	}

	var (
		session *discordgo.Session
		handler *discord.Handler
	)
	orchestrator := stream.NewOrchestrator(streamCfg, stops, tools, nil, metrics)

	if cfg.DiscordToken == "" {
		log.Printf("discord: no token configured, gateway disabled")
	} else {
		session, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			log.Fatalf("discord session init failed: %v", err)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentMessageContent

		notifier := discord.NewNotifier(session, cfg.Locale, nil)
		orchestrator = stream.NewOrchestrator(streamCfg, stops, tools, notifier, metrics)
		handler = discord.NewHandler(session, cfg, provider, orchestrator, locks, notifier)
		session.AddHandler(handler.HandleMessageCreate)

		if err := session.Open(); err != nil {
			log.Fatalf("discord gateway open failed: %v", err)
		}
		defer session.Close()
		handler.SetBotUser(session.State.User.ID, session.State.User.Username)
		log.Printf("discord: connected as %s", session.State.User.Username)
	}

	api := httpapi.New(cfg, orchestrator, locks, metrics, provider.Name())
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	if session != nil {
		_ = session.Close()
	}
	if handler != nil {
		handler.Wait()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// registerBuiltinTools installs the handlers every deployment gets:
// current_time answers locally, web_search is outbound and stubbed until a
// search backend is configured.
func registerBuiltinTools(tools *stream.ToolRegistry) {
	mustRegister(tools, stream.Tool{
		Decl: llm.ToolDecl{
			Name:        "current_time",
			Description: "Returns the current date and time in the bot's timezone.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(_ context.Context, _ llm.FunctionCall) (llm.FunctionResult, error) {
			now := time.Now()
			zone, _ := now.Zone()
			return llm.FunctionResult{Output: map[string]any{
				"time": now.Format(time.RFC1123),
				"zone": zone,
			}}, nil
		},
	})

	mustRegister(tools, stream.Tool{
		Decl: llm.ToolDecl{
			Name:        "web_search",
			Description: "Searches the web for current information.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query.",
					},
				},
				"required": []string{"query"},
			},
		},
		Outbound: true,
		Handler: func(_ context.Context, call llm.FunctionCall) (llm.FunctionResult, error) {
			query, _ := call.Args["query"].(string)
			return llm.FunctionResult{Output: map[string]any{
				"query":   query,
				"results": []any{},
				"note":    "no search backend configured",
			}}, nil
		},
	})
}

func mustRegister(tools *stream.ToolRegistry, t stream.Tool) {
	if err := tools.Register(t); err != nil {
		log.Fatalf("tool registration failed: %v", err)
	}
}
