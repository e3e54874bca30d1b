package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentcore/nexuscore/internal/appconfig"
	"github.com/agentcore/nexuscore/internal/background"
	"github.com/agentcore/nexuscore/internal/channels"
	"github.com/agentcore/nexuscore/internal/channels/discord"
	"github.com/agentcore/nexuscore/internal/channels/slack"
	"github.com/agentcore/nexuscore/internal/channels/telegram"
	"github.com/agentcore/nexuscore/internal/cron"
	"github.com/agentcore/nexuscore/internal/dispatch"
	"github.com/agentcore/nexuscore/internal/events"
	"github.com/agentcore/nexuscore/internal/executor"
	"github.com/agentcore/nexuscore/internal/executor/providers"
	"github.com/agentcore/nexuscore/internal/failover"
	"github.com/agentcore/nexuscore/internal/memory"
	"github.com/agentcore/nexuscore/internal/pairing"
	"github.com/agentcore/nexuscore/internal/queue"
	"github.com/agentcore/nexuscore/internal/registry"
	"github.com/agentcore/nexuscore/internal/security"
	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/internal/subagent"
	"github.com/agentcore/nexuscore/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration core until a shutdown signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the daemon config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}

// core bundles every wired component so the rest of this file, and
// buildStatusCmd, can reach into a running or freshly opened daemon.
type core struct {
	cfg        *appconfig.Config
	st         *store.Store
	queue      *queue.Queue
	registry   *registry.Registry
	tracker    *subagent.Tracker
	approvals  *security.ApprovalManager
	dispatcher *dispatch.Dispatcher
	cron       *cron.Scheduler
	background *background.Runtime
	channels   *channels.Registry
	router     *channels.Router
	memory     *memory.Store
	pairing    *pairing.Store
	sink       events.Sink
}

func openCore(cfg *appconfig.Config, sink events.Sink) (*core, error) {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	q := queue.New(st)
	reg := registry.New(st, registry.Dependencies{
		ToolExists:  func(string) bool { return true },
		SkillExists: func(string) bool { return true },
		SecretExists: func(name string) bool {
			_, ok := os.LookupEnv(name)
			return ok
		},
	})

	approvals := security.NewApprovalManager(st, nil)

	factories := map[string]executor.ProviderFactory{
		"anthropic": providers.NewAnthropicProvider,
		"openai":    providers.NewOpenAIProvider,
	}

	fo := failover.New(cfg.Failover.ToOrchestratorConfig())
	dispatcher := dispatch.New(dispatch.Dependencies{
		Registry:  reg,
		Executor:  executor.New(0),
		Failover:  fo,
		Retry:     cfg.Failover.ToRetryConfig(),
		Approvals: approvals,
		Policy:    cfg.Security,
		Factories: factories,
	})

	cronSched := cron.New(st, q)
	tracker := subagent.New()

	bgExecutor := dispatch.NewBackgroundExecutor(dispatcher, sink)
	bgRuntime := background.New(st, bgExecutor, tracker, background.WithTickInterval(cfg.Cron.TickInterval))

	chanRegistry := channels.NewRegistry()
	router := channels.NewRouter(chanRegistry)
	mem := memory.New(st)
	pairings := pairing.New(st)

	return &core{
		cfg:        cfg,
		st:         st,
		queue:      q,
		registry:   reg,
		tracker:    tracker,
		approvals:  approvals,
		dispatcher: dispatcher,
		cron:       cronSched,
		background: bgRuntime,
		channels:   chanRegistry,
		router:     router,
		memory:     mem,
		pairing:    pairings,
		sink:       sink,
	}, nil
}

func (c *core) close() {
	c.st.Close()
}

func registerChannelAdapters(cfg *appconfig.Config, reg *channels.Registry) {
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.Token})
		if err != nil {
			slog.Error("discord adapter init failed", "error", err)
		} else {
			reg.Register(adapter)
		}
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.Token})
		if err != nil {
			slog.Error("telegram adapter init failed", "error", err)
		} else {
			reg.Register(adapter)
		}
	}
	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.Token != "" {
		adapter := slack.NewAdapter(slack.Config{BotToken: cfg.Channels.Slack.Token})
		reg.Register(adapter)
	}
}

// bridgeInboundMessages turns every inbound channel message into a
// queued task, using the router to record the conversation context so
// a later reply can find its way back to the right chat.
func bridgeInboundMessages(ctx context.Context, c *core, now func() time.Time) {
	msgs := c.channels.AggregateMessages(ctx)
	go func() {
		for msg := range msgs {
			conv := c.router.RecordConversation(msg, models.ConversationKindMain, "")
			task := models.Task{
				ID:      uuid.NewString(),
				AgentID: resolveInboundAgent(ctx, c, msg),
				Input:   msg.Content,
				Context: models.TaskContext{Variables: map[string]any{"conversation_id": conv.ConversationID}},
			}
			if _, err := c.queue.Submit(ctx, task, now()); err != nil {
				slog.Error("submit inbound task failed", "channel", msg.Channel, "error", err)
			}
		}
	}()
}

// resolveInboundAgent picks the agent a message should be dispatched to:
// a peer-specific route binding wins, then a default binding, falling
// back to the agent named by the channel type when pairing has no
// bindings configured at all.
func resolveInboundAgent(ctx context.Context, c *core, msg *models.Message) string {
	if c.pairing != nil {
		if binding, err := c.pairing.ResolveRouteByKey(ctx, pairing.RouteKey(models.RouteBindingPeer, msg.ChannelID)); err == nil {
			return binding.AgentID
		}
		if binding, err := c.pairing.ResolveRouteByKey(ctx, pairing.RouteKey(models.RouteBindingDefault, "*")); err == nil {
			return binding.AgentID
		}
	}
	return string(msg.Channel)
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("starting nexuscored", "version", version, "commit", commit, "config", configPath)

	var metricsServer *http.Server
	var sink events.Sink
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		metrics := events.NewMetrics(promReg)
		sink = events.NewMetricsSink(metrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	c, err := openCore(cfg, sink)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registerChannelAdapters(cfg, c.channels)
	if err := c.channels.StartAll(ctx); err != nil {
		slog.Warn("one or more channel adapters failed to start", "error", err)
	}
	bridgeInboundMessages(ctx, c, time.Now)

	c.cron.Start(ctx)
	c.background.Start(ctx)

	workerCount := cfg.Queue.MaxParallel
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		w := dispatch.NewWorker(c.queue, c.dispatcher, c.tracker, workerCount,
			dispatch.WithWorkerSink(c.sink), dispatch.WithWorkerMemory(c.memory))
		go w.Loop(ctx)
	}

	slog.Info("nexuscored started", "store", cfg.StorePath, "workers", workerCount)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := c.background.Shutdown(shutdownCtx); err != nil {
		slog.Error("background runtime shutdown failed", "error", err)
	}
	if err := c.cron.Shutdown(shutdownCtx); err != nil {
		slog.Error("cron scheduler shutdown failed", "error", err)
	}
	if err := c.channels.StopAll(shutdownCtx); err != nil {
		slog.Error("channel adapters shutdown failed", "error", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	slog.Info("nexuscored stopped")
	return nil
}
