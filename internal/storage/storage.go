// Package storage holds the blob backends the media store writes image bytes to.
// Keys are slash separated paths relative to the media root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/sergioamr/img-api/aws"
	"github.com/sergioamr/img-api/config"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Put stores r under key, replacing any previous object. Readers never
	// observe a partially written object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes key. A missing object is not an error.
	Remove(ctx context.Context, key string) error
	ModTime(ctx context.Context, key string) (time.Time, error)
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.Storage) (Backend, error) {
	switch cfg.Type {
	case "local":
		return NewLocalFromPath(cfg.MediaPath)
	case "s3", "r2":
		client, err := aws.NewS3(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s client, %w", cfg.Type, err)
		}

		return NewS3(client), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}

	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}

	return cleaned, nil
}
