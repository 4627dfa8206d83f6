package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jordanhubbard/gauntlet/internal/cache"
	"github.com/jordanhubbard/gauntlet/internal/database"
	"github.com/jordanhubbard/gauntlet/internal/difficulty"
	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/internal/evaluation"
	"github.com/jordanhubbard/gauntlet/internal/gauntlet"
	"github.com/jordanhubbard/gauntlet/internal/knowledge"
	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/internal/logging"
	"github.com/jordanhubbard/gauntlet/internal/messagebus"
	"github.com/jordanhubbard/gauntlet/internal/metrics"
	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/internal/scenario"
	"github.com/jordanhubbard/gauntlet/internal/telemetry"
	"github.com/jordanhubbard/gauntlet/pkg/config"
)

// app holds everything a command needs, built from one config.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     learning.Store
	bus       *messagebus.NatsMessageBus
	topics    *knowledge.StaticSource
	trends    *knowledge.CachingSource
	providers *provider.Registry
	engine    *gauntlet.Engine

	closers []func()
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	a.onClose(func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	})

	a.store, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.onClose(func() {
		if err := a.store.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	})

	if cfg.NATS.Enabled {
		a.bus, err = messagebus.NewNatsMessageBus(messagebus.ConfigFrom(cfg.NATS, logger))
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = a.bus.Close() })
	}

	a.providers, err = provider.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		return nil, err
	}

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.topics = knowledge.NewStaticSource(cfg.Knowledge.Topics)
	a.trends = knowledge.NewCachingSource(a.topics, backend, cfg.Cache.DefaultTTL, logger)

	responders, err := buildResponders(cfg, a.providers, a.bus)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	controller := difficulty.NewController(difficulty.RulesFromConfig(cfg.Difficulty))

	var judge evaluation.Evaluator
	if cfg.Judge.Enabled {
		p, err := a.providers.Get(cfg.Judge.Provider)
		if err != nil {
			return nil, fmt.Errorf("judge: %w", err)
		}
		judge = evaluation.NewJudgeEvaluator(p, cfg.Judge.Model)
	}

	opts := []gauntlet.Option{
		gauntlet.WithLogger(logger),
		gauntlet.WithMetrics(m),
		gauntlet.WithController(controller),
		gauntlet.WithGenerator(scenario.NewGenerator(
			scenario.WithKnowledgeSource(a.trends),
			scenario.WithLogger(logger),
		)),
		gauntlet.WithCoordinator(dispatch.NewCoordinator(
			dispatch.WithLogger(logger),
			dispatch.WithObserver(m),
			dispatch.WithBudgetScale(cfg.Engine.BudgetScale),
		)),
		gauntlet.WithPipeline(evaluation.NewPipeline(judge,
			evaluation.WithRetryPolicy(evaluation.RetryPolicyFromConfig(cfg.Evaluation)),
			evaluation.WithLogger(logger),
		)),
		gauntlet.WithPersistenceRetry(cfg.Engine.PersistenceRetries, cfg.Engine.PersistenceBackoff),
	}
	if a.bus != nil {
		opts = append(opts, gauntlet.WithPublisher(a.bus))
	}
	a.engine = gauntlet.New(a.store, responders, opts...)
	return a, nil
}

func (a *app) cacheBackend(ctx context.Context) (cache.Backend, error) {
	cc := cache.ConfigFrom(a.cfg.Cache)
	if a.cfg.Cache.Backend == "redis" {
		rc, err := cache.NewRedisCache(ctx, a.cfg.Cache.RedisURL, cc)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = rc.Close() })
		return rc, nil
	}
	c := cache.New(cc)
	a.onClose(c.Close)
	return c, nil
}

// reload applies the parts of a changed config that can change at runtime.
func (a *app) reload(cfg *config.Config) {
	a.topics.Update(cfg.Knowledge.Topics)
	n := a.trends.Invalidate(context.Background())
	a.logger.Info("knowledge topics reloaded", zap.Int("invalidated", n))
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// buildResponders maps every configured agent to a responder kind.
// Provider agents resolve to the kind "provider:<id>".
func buildResponders(cfg *config.Config, providers *provider.Registry, bus *messagebus.NatsMessageBus) (*dispatch.Registry, error) {
	defaultKind := cfg.Responders.DefaultKind
	if defaultKind == "provider" {
		if cfg.Responders.DefaultProvider == "" {
			return nil, errors.New("responders.default_provider is required when default_kind is provider")
		}
		defaultKind = providerKind(cfg.Responders.DefaultProvider)
	}
	reg := dispatch.NewRegistry(defaultKind)
	reg.Register("static", dispatch.StaticResponder{Reply: cfg.Responders.StaticReply})
	if bus != nil {
		reg.Register("nats", messagebus.NewAgentResponder(bus.Conn()))
	}
	for _, id := range providers.IDs() {
		p, err := providers.Get(id)
		if err != nil {
			return nil, err
		}
		reg.Register(providerKind(id), dispatch.NewProviderResponder(p))
	}

	for _, ag := range cfg.Agents {
		kind := ag.Kind
		switch kind {
		case "":
			continue
		case "provider":
			if ag.Provider == "" {
				return nil, fmt.Errorf("agent %s: provider kind needs a provider", ag.ID)
			}
			kind = providerKind(ag.Provider)
		case "nats":
			if bus == nil {
				return nil, fmt.Errorf("agent %s: nats kind needs nats.enabled", ag.ID)
			}
		}
		reg.Assign(ag.ID, kind)
	}
	return reg, nil
}

func providerKind(id string) string { return "provider:" + id }
