package limiter

import (
	"context"
	"sort"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StatusView read-only projection of one key
type StatusView struct {
	Decision
	UniqueID    string  `json:"unique_id"`
	UserID      string  `json:"user_id"`
	Initialized bool    `json:"initialized"`
	Rate        float64 `json:"rate"`
	Capacity    int64   `json:"capacity"`
	MaxRequests int64   `json:"max_requests"`
	WindowSize  int64   `json:"window_size"`
}

// StatusRequest status lookup; empty ActionType lists every registered action
type StatusRequest struct {
	UniqueID    string
	UserID      string
	ActionType  string
	StorageType string
	Now         *time.Time
}

// Status projects the key's quota without writing or consuming.
// An unknown key reports initialized=false with the default parameters.
func (m *Manager) Status(ctx context.Context, k Key, storageType string, now *time.Time) (*StatusView, error) {
	ctx, span := m.tracer.Start(ctx, "limiter.Status", trace.WithAttributes(
		attribute.String("ratelimit.action_type", k.ActionType),
	))
	defer span.End()

	if err := k.Validate(); err != nil {
		return nil, errcode.ErrInvalidParams.Wrap(err)
	}
	store, err := m.stores.Get(storageType)
	if err != nil {
		return nil, err
	}
	return m.status(ctx, store, k, unixSeconds(m.now(now)))
}

func (m *Manager) status(ctx context.Context, store storage.Store, k Key, now float64) (*StatusView, error) {
	cfg, initialized, err := m.readConfig(ctx, store, k)
	if err != nil {
		return nil, err
	}
	if !initialized {
		cfg = m.config.Defaults.Build("", k.ActionType, Params{}, time.Time{})
	}

	algo, err := GetAlgorithm(cfg.AlgorithmType)
	if err != nil {
		return nil, err
	}

	var state *State
	if initialized {
		stateKey := m.keys.state(cfg.AlgorithmType, k)
		if _, state, err = m.loadState(ctx, store, stateKey, cfg.AlgorithmType, k); err != nil {
			return nil, err
		}
	}

	res := algo.Project(state, cfg, now)
	return &StatusView{
		Decision:    newDecision(res, cfg),
		UniqueID:    k.UniqueID,
		UserID:      k.UserID,
		Initialized: initialized,
		Rate:        cfg.Rate,
		Capacity:    cfg.Capacity,
		MaxRequests: cfg.MaxRequests,
		WindowSize:  cfg.WindowSize,
	}, nil
}

// Actions registered action types for the pair, sorted
func (m *Manager) Actions(ctx context.Context, uniqueID, userID, storageType string) ([]string, error) {
	store, err := m.stores.Get(storageType)
	if err != nil {
		return nil, err
	}
	_, actions, err := m.loadActions(ctx, store, m.keys.actions(uniqueID, userID))
	return actions, err
}

// StatusAll status of every action registered under (unique_id, user_id), sorted by action type
func (m *Manager) StatusAll(ctx context.Context, uniqueID, userID, storageType string, now *time.Time) ([]*StatusView, error) {
	ctx, span := m.tracer.Start(ctx, "limiter.StatusAll")
	defer span.End()

	pair := struct{ UniqueID, UserID string }{uniqueID, userID}
	if err := validation.ValidateStruct(&pair,
		validation.Field(&pair.UniqueID, validation.Required),
		validation.Field(&pair.UserID, validation.Required),
	); err != nil {
		return nil, errcode.ErrInvalidParams.Wrap(err)
	}

	store, err := m.stores.Get(storageType)
	if err != nil {
		return nil, err
	}
	_, actions, err := m.loadActions(ctx, store, m.keys.actions(uniqueID, userID))
	if err != nil {
		return nil, err
	}

	at := unixSeconds(m.now(now))
	views := make([]*StatusView, len(actions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.StatusConcurrency)
	for i, action := range actions {
		g.Go(func() error {
			view, err := m.status(gctx, store, Key{UniqueID: uniqueID, UserID: userID, ActionType: action}, at)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ActionType < views[j].ActionType })
	return views, nil
}

// Reset deletes the key's config, state and registry entry; the next check starts fresh
func (m *Manager) Reset(ctx context.Context, k Key, storageType string) error {
	ctx, span := m.tracer.Start(ctx, "limiter.Reset")
	defer span.End()

	if err := k.Validate(); err != nil {
		return errcode.ErrInvalidParams.Wrap(err)
	}
	store, err := m.stores.Get(storageType)
	if err != nil {
		return err
	}

	configKey := m.keys.config(k)
	keys := []string{configKey}
	for algo := range algorithms {
		keys = append(keys, m.keys.state(algo, k))
	}
	if err := store.Delete(ctx, keys...); err != nil {
		return err
	}
	m.configs.Remove(cacheKey(storageType, configKey))

	if err := m.unregisterAction(ctx, store, k); err != nil {
		return err
	}

	m.logger.InfoCtx(ctx, "rate limit key reset", zap.String("key", k.String()))
	m.bus.Publish(&ResetEvent{
		BaseEvent:   NewBaseEvent(ctx, EventReset, k),
		StorageType: storageType,
	})
	return nil
}
