// Command agentd runs the agent orchestration daemon: it loads the
// configuration, registers the built-in toolkit and serves the HTTP API with
// its SSE and WebSocket streams.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickrewind/agentcore/config"
	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/dispatch"
	"github.com/quickrewind/agentcore/executor"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/metrics"
	"github.com/quickrewind/agentcore/model"
	modelanthropic "github.com/quickrewind/agentcore/model/anthropic"
	modelopenai "github.com/quickrewind/agentcore/model/openai"
	"github.com/quickrewind/agentcore/planner"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/server"
	"github.com/quickrewind/agentcore/session"
	"github.com/quickrewind/agentcore/stream"
	"github.com/quickrewind/agentcore/toolkit"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "agentd",
		Short:         "Agent orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentd.yaml", "path to the YAML config file")

	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewSlogLoggerTo(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, false)

	completion, err := buildCompletion(cfg)
	if err != nil {
		return err
	}
	logger.Info("model provider ready", "provider", completion.Name())

	m := metrics.New()

	reg := registry.New(func(o *registry.Options) { o.Logger = logger })
	if err := toolkit.RegisterDefaults(reg, completion); err != nil {
		return fmt.Errorf("register toolkit: %w", err)
	}
	logger.Info("toolkit registered", "tools", reg.Len())

	pool := dispatch.NewPool(func(o *dispatch.Options) {
		o.Workers = cfg.Dispatch.Workers
		o.QueueDepth = cfg.Dispatch.QueueDepth
		o.Logger = logger
		o.OnQueue = m.QueueChanged
	})
	defer pool.Close()

	dispatcher := dispatch.NewDispatcher(pool, logger, func(o *dispatch.DispatcherOptions) {
		o.OnInvoke = m.ToolInvoked
	})

	bus := stream.NewBus(func(o *stream.Options) {
		o.Logger = logger
		o.OnPublish = func(sessionID string, ev core.StreamEvent) {
			m.EventPublished(string(ev.Type))
		}
	})

	store := session.NewStore(func(o *session.Options) {
		o.Retention = cfg.Session.Retention
		o.Logger = logger
		o.OnEvict = bus.CloseTopic
	})

	p := planner.New(completion, reg, func(o *planner.Options) {
		o.MaxSteps = cfg.Planner.MaxSteps
		o.Logger = logger
		o.OnModelCall = m.ModelCalled
	})

	exec := executor.New(p, completion, reg, dispatcher, bus, store, func(o *executor.Options) {
		o.PlanningTimeout = cfg.Planner.PlanningTimeout
		o.SynthesisTimeout = cfg.Session.SynthesisTimeout
		o.ToolTimeout = cfg.Dispatch.ToolTimeout
		o.SessionTimeout = cfg.Session.SessionTimeout
		o.Logger = logger
		o.OnFinish = func(sess *core.Session) {
			m.SessionFinished(sess.Status().String(), time.Since(sess.Created))
		}
		o.OnModelCall = m.ModelCalled
	})

	srv := server.New(exec, store, bus, reg, dispatcher, func(o *server.Options) {
		o.HeartbeatInterval = cfg.Server.HeartbeatInterval
		o.ToolTimeout = cfg.Dispatch.ToolTimeout
		o.Logger = logger
		o.Metrics = m
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go store.RunSweeper(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildCompletion constructs the configured model provider.
func buildCompletion(cfg *config.Config) (model.Completion, error) {
	switch cfg.Provider.Type {
	case "anthropic":
		return modelanthropic.New(func(o *modelanthropic.Options) {
			if cfg.Provider.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Provider.Model)
			}
			o.APIKey = cfg.Provider.APIKey
		}), nil
	case "openai":
		return modelopenai.New(func(o *modelopenai.Options) {
			if cfg.Provider.Model != "" {
				o.Model = cfg.Provider.Model
			}
			o.APIKey = cfg.Provider.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Type)
	}
}
