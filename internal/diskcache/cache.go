// Package diskcache memoizes JSON API responses as files on disk. Entries
// expire by modification time and can be tied to a source artifact whose
// newer modification time invalidates them.
package diskcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Lookups that find no usable entry return an error wrapping ErrMiss.
// Any other error means the cache itself could not be read.
var (
	ErrMiss        = errors.New("cache miss")
	ErrNotFound    = fmt.Errorf("%w: no entry", ErrMiss)
	ErrExpired     = fmt.Errorf("%w: entry expired", ErrMiss)
	ErrInvalidated = fmt.Errorf("%w: source changed", ErrMiss)
)

const (
	DefaultRoot   = "/tmp/cache"
	DefaultLocale = "EN"

	globalSegment = "API"
	anonSegment   = "anon"
)

type Scope int

const (
	// ScopeGlobal shares one entry between every caller.
	ScopeGlobal Scope = iota
	// ScopeIdentity keeps one entry per username, "anon" when logged out.
	ScopeIdentity
)

// SourceStat returns the modification time of a source artifact.
type SourceStat func(ctx context.Context, source string) (time.Time, error)

type Cache struct {
	fs         afero.Fs
	locale     string
	now        func() time.Time
	sourceStat SourceStat
}

type Option func(*Cache)

func WithLocale(locale string) Option {
	return func(c *Cache) {
		if locale != "" {
			c.locale = locale
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSourceStat sets how source artifacts passed to Read are resolved.
func WithSourceStat(fn SourceStat) Option {
	return func(c *Cache) { c.sourceStat = fn }
}

func New(fs afero.Fs, opts ...Option) *Cache {
	c := &Cache{
		fs:     fs,
		locale: DefaultLocale,
		now:    time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// NewOnDisk roots a cache at dir on the OS filesystem.
func NewOnDisk(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		dir = DefaultRoot
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory, %w", err)
	}

	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), opts...), nil
}

func (c *Cache) Locale() string {
	return c.locale
}

// Read returns the cached payload for key, stamped with "cached" and
// "cache" fields. expiration <= 0 disables the age check and an empty
// source disables the source check.
func (c *Cache) Read(ctx context.Context, key string, scope Scope, identity string, expiration time.Duration, source string) (map[string]any, error) {
	name := entryPath(key, scope, identity)

	fi, err := c.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to stat cache entry, %w", err)
	}

	if expiration > 0 && fi.ModTime().Before(c.now().Add(-expiration)) {
		return nil, ErrExpired
	}

	if source != "" && c.sourceStat != nil {
		srcTime, err := c.sourceStat(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidated, err)
		}

		if srcTime.After(fi.ModTime()) {
			return nil, ErrInvalidated
		}
	}

	b, err := afero.ReadFile(c.fs, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry, %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry, %w", err)
	}

	if payload == nil {
		return nil, errors.New("failed to parse cache entry, not a JSON object")
	}

	payload["cached"] = true
	payload["cache"] = key

	return payload, nil
}

// Write stores body, which must be a JSON document, under key. The entry
// is written to a temporary file and renamed into place.
func (c *Cache) Write(key string, scope Scope, identity string, body []byte) error {
	if !json.Valid(body) {
		return errors.New("refusing to cache invalid JSON")
	}

	name := entryPath(key, scope, identity)
	dir := path.Dir(name)

	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory, %w", err)
	}

	tmp, err := afero.TempFile(c.fs, dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file, %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry, %w", err)
	}

	if err := tmp.Close(); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry, %w", err)
	}

	if err := c.fs.Rename(tmpName, name); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to move cache entry into place, %w", err)
	}

	return nil
}

func entryPath(key string, scope Scope, identity string) string {
	return segment(scope, identity) + "/" + key + ".json"
}

func segment(scope Scope, identity string) string {
	if scope == ScopeGlobal {
		return globalSegment
	}

	if identity == "" {
		return anonSegment
	}

	// Usernames are single path segments already; anything else, and names
	// that would land in a reserved segment, is hashed.
	switch {
	case identity == "." || identity == "..",
		identity == globalSegment || identity == anonSegment,
		strings.ContainsAny(identity, `/\`+"\x00"):
		sum := md5.Sum([]byte(identity))
		return hex.EncodeToString(sum[:])
	}

	return identity
}

// Purge drops every entry stored for identity.
func (c *Cache) Purge(identity string) error {
	if identity == "" {
		return nil
	}

	return c.fs.RemoveAll(segment(ScopeIdentity, identity))
}
