package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type modelArtifactStore interface {
	Save(ctx context.Context, model *models.TrainedModel) error
	Load(ctx context.Context, key string) (*models.TrainedModel, error)
}

// ModelCache keeps loaded artifacts in memory, including the fact that an
// artifact is absent. Entries live until Invalidate or Reset; artifacts
// written by another process become visible only after a reload.
type ModelCache struct {
	store  modelArtifactStore
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*models.TrainedModel
}

// NewModelCache constructs a cache in front of the artifact store.
func NewModelCache(store modelArtifactStore, logger *zap.Logger) *ModelCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCache{store: store, logger: logger, entries: make(map[string]*models.TrainedModel)}
}

// Get returns the artifact for key, loading it on first use.
// ErrModelUnavailable reports a known-absent artifact.
func (c *ModelCache) Get(ctx context.Context, key string) (*models.TrainedModel, error) {
	c.mu.RLock()
	model, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if model == nil {
			return nil, appErrors.Clone(appErrors.ErrModelUnavailable, "no trained model for "+key)
		}
		return model, nil
	}

	model, err := c.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrModelUnavailable) {
			c.remember(key, nil)
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPredictorInternal.Code, appErrors.ErrPredictorInternal.Status, "failed to load model "+key)
	}
	c.remember(key, model)
	c.logger.Debug("model artifact loaded", zap.String("key", key), zap.Int("rows", model.Rows))
	return model, nil
}

func (c *ModelCache) remember(key string, model *models.TrainedModel) {
	c.mu.Lock()
	c.entries[key] = model
	c.mu.Unlock()
}

// Invalidate forgets key so the next Get reloads it.
func (c *ModelCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset forgets every entry and returns how many were dropped.
func (c *ModelCache) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*models.TrainedModel)
	return n
}
