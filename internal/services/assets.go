package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/storage"
)

// AssetStore fetches and decodes source photos for one render job. Decoded
// images are cached because the resolver references the same photo on every
// frame of its clip.
type AssetStore struct {
	storage *storage.Storage
	tempDir string

	mu    sync.Mutex
	cache map[string]image.Image
}

func NewAssetStore(st *storage.Storage, tempDir string) *AssetStore {
	return &AssetStore{
		storage: st,
		tempDir: tempDir,
		cache:   make(map[string]image.Image),
	}
}

// Image implements the rasterizer's image source.
func (a *AssetStore) Image(ctx context.Context, resourceID string) (image.Image, error) {
	a.mu.Lock()
	img, ok := a.cache[resourceID]
	a.mu.Unlock()
	if ok {
		return img, nil
	}

	data, err := a.storage.Download(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", resourceID, err)
	}

	a.mu.Lock()
	a.cache[resourceID] = img
	a.mu.Unlock()
	return img, nil
}

// AudioFile downloads an audio resource to the job's temp dir and returns
// the local path, which ffmpeg needs for muxing.
func (a *AssetStore) AudioFile(ctx context.Context, jobID uuid.UUID, resourceID string) (string, error) {
	data, err := a.storage.Download(ctx, resourceID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(a.tempDir, fmt.Sprintf("%s-%s", jobID, filepath.Base(resourceID)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio temp file: %w", err)
	}
	return path, nil
}

// Release drops the cache once the job is done with it.
func (a *AssetStore) Release() {
	a.mu.Lock()
	a.cache = make(map[string]image.Image)
	a.mu.Unlock()
}
