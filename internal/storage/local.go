package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
)

type Local struct {
	fs afero.Fs
}

func NewLocal(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

// NewLocalFromPath roots a Local backend at dir on the OS filesystem.
func NewLocalFromPath(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory, %w", err)
	}

	return NewLocal(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}

	return afero.Exists(l.fs, key)
}

func (l *Local) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	dir := path.Dir(key)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory, %w", err)
	}

	tmp, err := afero.TempFile(l.fs, dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file, %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		l.fs.Remove(tmpName)
		return fmt.Errorf("failed to write file, %w", err)
	}

	if err := tmp.Close(); err != nil {
		l.fs.Remove(tmpName)
		return fmt.Errorf("failed to close file, %w", err)
	}

	if err := l.fs.Rename(tmpName, key); err != nil {
		l.fs.Remove(tmpName)
		return fmt.Errorf("failed to move file into place, %w", err)
	}

	return nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := l.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, err
	}

	return f, nil
}

func (l *Local) Remove(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := l.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (l *Local) ModTime(_ context.Context, key string) (time.Time, error) {
	key, err := cleanKey(key)
	if err != nil {
		return time.Time{}, err
	}

	fi, err := l.fs.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return time.Time{}, err
	}

	return fi.ModTime(), nil
}
