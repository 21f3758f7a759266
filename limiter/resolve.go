package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/KOMKZ/go-yogan-ratelimiter/retry"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"go.uber.org/zap"
)

// cacheKey resolved configs are cached per store
func cacheKey(storageType, configKey string) string {
	return string(storage.ParseType(storageType)) + "|" + configKey
}

// resolveConfig returns the persisted config for the key, creating it from the hints on first use.
// Concurrent first calls in this process share one lookup. cached reports a hit in the
// in-process LRU, which may be stale if another process reset the key.
func (m *Manager) resolveConfig(ctx context.Context, store storage.Store, req CheckRequest) (cfg AlgorithmConfig, cached bool, err error) {
	configKey := m.keys.config(req.Key)
	ck := cacheKey(req.StorageType, configKey)
	if cfg, ok := m.configs.Get(ck); ok {
		return cfg, true, nil
	}

	v, err, _ := m.group.Do(ck, func() (interface{}, error) {
		cfg, err := m.loadOrCreateConfig(ctx, store, configKey, req)
		if err != nil {
			return nil, err
		}
		m.configs.Add(ck, cfg)
		return cfg, nil
	})
	if err != nil {
		return AlgorithmConfig{}, false, err
	}
	return v.(AlgorithmConfig), false, nil
}

// refreshConfig drops the cached entry and resolves again from the store
func (m *Manager) refreshConfig(ctx context.Context, store storage.Store, req CheckRequest) (AlgorithmConfig, error) {
	m.configs.Remove(cacheKey(req.StorageType, m.keys.config(req.Key)))
	cfg, _, err := m.resolveConfig(ctx, store, req)
	return cfg, err
}

func (m *Manager) loadOrCreateConfig(ctx context.Context, store storage.Store, configKey string, req CheckRequest) (AlgorithmConfig, error) {
	cfg, err := retry.DoWithData(ctx, func() (AlgorithmConfig, error) {
		raw, err := store.Get(ctx, configKey)
		switch {
		case err == nil:
			cfg, derr := decodeConfig(raw)
			if derr == nil {
				// 创建时的登记可能失败过, 缓存未命中时补登记 (已登记则不写)
				if err := m.registerAction(ctx, store, req.Key); err != nil {
					return AlgorithmConfig{}, err
				}
				return cfg, nil
			}
			m.reportCorrupt(ctx, req.Key, configKey, "config", derr)
		case errors.Is(err, storage.ErrNotFound):
			raw = nil
		default:
			return AlgorithmConfig{}, err
		}

		candidate := m.config.Defaults.Build(req.AlgorithmType, req.ActionType, req.Params, m.now(req.Now))
		if err := candidate.Validate(); err != nil {
			return AlgorithmConfig{}, ErrConfigInvalid.Wrap(err).
				WithData("algorithm_type", string(candidate.AlgorithmType))
		}

		data, err := encodeConfig(candidate)
		if err != nil {
			return AlgorithmConfig{}, err
		}
		ok, err := store.CompareAndSet(ctx, configKey, raw, data, m.configTTL)
		if err != nil {
			return AlgorithmConfig{}, err
		}
		if !ok {
			// 另一个调用者先写入, 重新读取它的配置
			return AlgorithmConfig{}, errConflict
		}

		if err := m.registerAction(ctx, store, req.Key); err != nil {
			return AlgorithmConfig{}, err
		}

		m.logger.InfoCtx(ctx, "rate limit config created",
			zap.String("key", req.Key.String()),
			zap.String("algorithm_type", string(candidate.AlgorithmType)),
			zap.Float64("rate", candidate.Rate),
			zap.Int64("capacity", candidate.Capacity),
			zap.Int64("max_requests", candidate.MaxRequests),
			zap.Int64("window_size", candidate.WindowSize))
		m.bus.Publish(&ConfigCreatedEvent{
			BaseEvent: NewBaseEvent(ctx, EventConfigCreated, req.Key),
			Config:    candidate,
		})
		return candidate, nil
	}, m.retryOptions("config")...)
	if err != nil {
		return AlgorithmConfig{}, m.finalError(configKey, err)
	}
	return cfg, nil
}

// readConfig stored config without creating one; ok=false when absent or corrupt
func (m *Manager) readConfig(ctx context.Context, store storage.Store, k Key) (AlgorithmConfig, bool, error) {
	configKey := m.keys.config(k)
	raw, err := store.Get(ctx, configKey)
	if errors.Is(err, storage.ErrNotFound) {
		return AlgorithmConfig{}, false, nil
	}
	if err != nil {
		return AlgorithmConfig{}, false, err
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		m.reportCorrupt(ctx, k, configKey, "config", err)
		return AlgorithmConfig{}, false, nil
	}
	return cfg, true, nil
}

// registerAction adds the action type to the per (unique_id, user_id) registry
func (m *Manager) registerAction(ctx context.Context, store storage.Store, k Key) error {
	return m.updateActions(ctx, store, k.UniqueID, k.UserID, func(actions []string) ([]string, bool) {
		if _, found := slices.BinarySearch(actions, k.ActionType); found {
			return actions, false
		}
		actions = append(actions, k.ActionType)
		slices.Sort(actions)
		return actions, true
	})
}

func (m *Manager) unregisterAction(ctx context.Context, store storage.Store, k Key) error {
	return m.updateActions(ctx, store, k.UniqueID, k.UserID, func(actions []string) ([]string, bool) {
		i, found := slices.BinarySearch(actions, k.ActionType)
		if !found {
			return actions, false
		}
		return slices.Delete(actions, i, i+1), true
	})
}

func (m *Manager) updateActions(ctx context.Context, store storage.Store, uniqueID, userID string,
	mutate func([]string) ([]string, bool)) error {
	key := m.keys.actions(uniqueID, userID)
	err := retry.Do(ctx, func() error {
		raw, actions, err := m.loadActions(ctx, store, key)
		if err != nil {
			return err
		}
		next, changed := mutate(actions)
		if !changed {
			return nil
		}
		if len(next) == 0 {
			return store.Delete(ctx, key)
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		ok, err := store.CompareAndSet(ctx, key, raw, data, m.configTTL)
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}
		return nil
	}, m.retryOptions("registry")...)
	if err != nil {
		return m.finalError(key, err)
	}
	return nil
}

// loadActions sorted action types; an unreadable registry is replaced
func (m *Manager) loadActions(ctx context.Context, store storage.Store, key string) ([]byte, []string, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var actions []string
	if err := json.Unmarshal(raw, &actions); err != nil {
		m.logger.WarnCtx(ctx, "corrupt action registry reinitialized", zap.String("storage_key", key), zap.Error(err))
		return raw, nil, nil
	}
	slices.Sort(actions)
	return raw, slices.Compact(actions), nil
}
