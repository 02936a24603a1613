// ABOUTME: Entry point for the courier chat integration service.
// ABOUTME: Wires store, transports, dispatcher, outbox, and coordinators.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/config"
	"github.com/beaconlabs/courier/internal/dedupe"
	"github.com/beaconlabs/courier/internal/dispatch"
	"github.com/beaconlabs/courier/internal/gateway"
	"github.com/beaconlabs/courier/internal/interact"
	"github.com/beaconlabs/courier/internal/logging"
	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/outbox"
	"github.com/beaconlabs/courier/internal/platform"
	"github.com/beaconlabs/courier/internal/platform/discord"
	"github.com/beaconlabs/courier/internal/platform/telegram"
	"github.com/beaconlabs/courier/internal/remote"
	"github.com/beaconlabs/courier/internal/store"
)

// Version is set at build time.
var version = "dev"

func defaultConfigPath() string {
	if envPath := os.Getenv("COURIER_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "courier.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "courier", "courier.yaml")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("courier", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "courier:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting courier", "version", version)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	codec := callback.New()

	var transports []platform.Transport
	var tgAdapter *telegram.Adapter
	var dcTransport *discord.Transport

	if cfg.Telegram.Enabled {
		api := remote.New(cfg.Telegram.APIBase+"/bot"+cfg.Telegram.Token,
			remote.WithLogger(logger.With("component", "remote", "platform", "telegram")))
		var opts []telegram.Option
		opts = append(opts, telegram.WithLogger(logger.With("component", "telegram")))
		if cfg.Telegram.PollTimeout > 0 {
			opts = append(opts, telegram.WithPollTimeout(cfg.Telegram.PollTimeout))
		}
		tgAdapter = telegram.New(api, opts...)
		transports = append(transports, tgAdapter)
	}
	if cfg.Discord.Enabled {
		api := remote.New(cfg.Discord.APIBase,
			remote.WithHeader("Authorization", "Bot "+cfg.Discord.Token),
			remote.WithLogger(logger.With("component", "remote", "platform", "discord")))
		dcTransport = discord.New(api, discord.WithLogger(logger.With("component", "discord")))
		transports = append(transports, dcTransport)
	}

	registry := platform.NewRegistry(transports...)

	outboxCfg := outbox.DefaultConfig()
	if cfg.Outbox.MaxAttempts > 0 {
		outboxCfg.MaxAttempts = cfg.Outbox.MaxAttempts
	}
	if cfg.Outbox.SweepInterval > 0 {
		outboxCfg.SweepInterval = cfg.Outbox.SweepInterval
	}
	delivery := outbox.NewManager(st, registry, outboxCfg, logger.With("component", "outbox"))

	coordinators := make(map[string]*interact.Coordinator, len(transports))
	for _, tr := range transports {
		coordinators[tr.Name()] = interact.NewCoordinator(interact.Config{
			Codec:     codec,
			Store:     st,
			Transport: tr,
			Timeout:   cfg.Interact.Timeout,
			Logger:    logger.With("component", "interact", "platform", tr.Name()),
		})
	}

	seen := dedupe.New(10*time.Minute, 4096)
	dispatcher := dispatch.New(dispatch.Config{
		Codec:  codec,
		Dedupe: func(dc dispatch.Context, ev model.Event) bool { return !seen.SeenEvent(ev) },
		Allow:  allowPredicate(cfg.Dispatcher.AllowedUsers),
		Logger: logger.With("component", "dispatch"),
	})
	defer dispatcher.Close()

	handler := eventHandler(coordinators, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		delivery.Run(ctx)
	}()

	for _, c := range coordinators {
		if err := c.ExpireStale(ctx); err != nil {
			logger.Warn("expiring stale prompts", "err", err)
		}
	}

	if tgAdapter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollLoop(ctx, tgAdapter, dispatcher, handler, logger)
		}()
	}

	if dcTransport != nil {
		gw := gateway.NewManager(gateway.Config{
			Resolve: dcTransport.ResolveGatewayURL,
			Identify: gateway.Identify{
				Token:   cfg.Discord.Token,
				Intents: cfg.Discord.Intents,
				Properties: gateway.IdentifyProperties{
					OS:      "linux",
					Browser: "courier",
					Device:  "courier",
				},
			},
			Handler: func(ctx context.Context, eventType string, data json.RawMessage) {
				ev, ok := discord.NormalizeDispatch(eventType, data)
				if !ok {
					return
				}
				dispatcher.Dispatch(ev, handler)
			},
			Logger: logger.With("component", "gateway"),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("gateway loop ended", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down, draining conversations")

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.WaitIdle(drainCtx); err != nil {
		logger.Warn("shutdown before all conversations drained", "err", err)
	}

	wg.Wait()
	logger.Info("courier stopped")
	return nil
}

// pollLoop drives the long-poll adapter, feeding the dispatcher. Poll errors
// back off briefly; the remote client has already retried underneath.
func pollLoop(ctx context.Context, adapter platform.Adapter, dispatcher *dispatch.Dispatcher, handler dispatch.Handler, logger *slog.Logger) {
	for ctx.Err() == nil {
		events, err := adapter.PollEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("poll failed", "platform", adapter.Name(), "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, ev := range events {
			dispatcher.Dispatch(ev, handler)
		}
	}
}

// eventHandler gives the interaction coordinators first claim on every event
// and logs what nothing consumed. The orchestration layer above replaces
// this tail when it attaches its own business handler.
func eventHandler(coordinators map[string]*interact.Coordinator, logger *slog.Logger) dispatch.Handler {
	return func(ctx context.Context, ev model.Event) error {
		c, ok := coordinators[ev.ThreadRef().Platform]
		if !ok {
			return fmt.Errorf("no coordinator for platform %q", ev.ThreadRef().Platform)
		}

		switch e := ev.(type) {
		case model.InteractionEvent:
			consumed, err := c.HandleInteraction(ctx, e)
			if err != nil {
				return err
			}
			if !consumed {
				logger.Info("unrouted interaction", "conversation", e.Thread.ConversationID(), "payload", e.Payload)
			}
		case model.MessageEvent:
			consumed, err := c.HandleMessage(ctx, e)
			if err != nil {
				return err
			}
			if !consumed {
				logger.Debug("unrouted message", "conversation", e.Thread.ConversationID())
			}
		}
		return nil
	}
}

// allowPredicate builds the allowlist check; an empty list allows everyone.
func allowPredicate(allowed []string) dispatch.Predicate {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	return func(dc dispatch.Context, ev model.Event) bool {
		return dc.FromUserID == "" || set[dc.FromUserID]
	}
}
