package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/storage"
)

type blobStore interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	Delete(name string) error
	List(prefix string) ([]string, error)
}

// ModelArtifactRepository keeps trained models as JSON documents named
// model_<key>.json in blob storage.
type ModelArtifactRepository struct {
	store blobStore
}

// NewModelArtifactRepository creates an artifact repository.
func NewModelArtifactRepository(store blobStore) *ModelArtifactRepository {
	return &ModelArtifactRepository{store: store}
}

const artifactPrefix = "model_"

// artifactName escapes key so that every artifact is a flat file name.
func artifactName(key string) string {
	return artifactPrefix + url.PathEscape(key) + ".json"
}

// Save writes or replaces the artifact for model.Key.
func (r *ModelArtifactRepository) Save(ctx context.Context, model *models.TrainedModel) error {
	if model == nil || model.Key == "" || model.Model == nil {
		return fmt.Errorf("save model artifact: incomplete model")
	}
	payload, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("encode model %s: %w", model.Key, err)
	}
	if _, err := r.store.Save(artifactName(model.Key), payload); err != nil {
		return fmt.Errorf("save model %s: %w", model.Key, err)
	}
	return nil
}

// Load reads the artifact for key. A missing artifact yields ErrModelUnavailable.
func (r *ModelArtifactRepository) Load(ctx context.Context, key string) (*models.TrainedModel, error) {
	payload, err := r.store.Read(artifactName(key))
	if errors.Is(err, storage.ErrNotExist) {
		return nil, appErrors.Clone(appErrors.ErrModelUnavailable, fmt.Sprintf("no trained model for %s", key))
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}
	var model models.TrainedModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", key, err)
	}
	if model.Model == nil {
		return nil, fmt.Errorf("decode model %s: missing parameters", key)
	}
	return &model, nil
}

// Delete removes the artifact for key if present.
func (r *ModelArtifactRepository) Delete(ctx context.Context, key string) error {
	return r.store.Delete(artifactName(key))
}

// Keys lists the keys of every stored artifact.
func (r *ModelArtifactRepository) Keys(ctx context.Context) ([]string, error) {
	names, err := r.store.List(artifactPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), ".json"))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
