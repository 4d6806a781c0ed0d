package diskcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sergioamr/img-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type middlewareOpts struct {
	source    func(c *gin.Context) string
	condition func(c *gin.Context) bool
}

type MiddlewareOption func(*middlewareOpts)

// WithSource ties entries to the artifact returned by fn. An empty string
// means the request has no source.
func WithSource(fn func(c *gin.Context) string) MiddlewareOption {
	return func(o *middlewareOpts) { o.source = fn }
}

// WithCondition restricts the cache to requests for which fn returns true.
// Other requests go straight to the handler and are never stored.
func WithCondition(fn func(c *gin.Context) bool) MiddlewareOption {
	return func(o *middlewareOpts) { o.condition = fn }
}

type bodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves JSON responses from the cache and stores successful
// ones. Identity scoped entries are keyed by the "username" context value.
// Requests with no_cache=1 skip the cache; debug_cache logs decisions at
// info level. Cache failures never fail the request.
func (cache *Cache) Middleware(scope Scope, expiration time.Duration, opts ...MiddlewareOption) gin.HandlerFunc {
	var mo middlewareOpts
	for _, o := range opts {
		o(&mo)
	}

	return func(c *gin.Context) {
		query := c.Request.URL.Query()

		level := zapcore.DebugLevel
		if query.Has("debug_cache") {
			level = zapcore.InfoLevel
		}

		if v := query.Get("no_cache"); v == "1" || v == "true" || mo.condition != nil && !mo.condition(c) {
			metrics.CacheLookups.WithLabelValues("bypass").Inc()
			c.Next()
			return
		}

		identity := c.GetString("username")
		key := ComputeKey(cache.locale, scope, identity, c.Request.URL.Path, query)

		var source string
		if mo.source != nil {
			source = mo.source(c)
		}

		payload, err := cache.Read(c.Request.Context(), key, scope, identity, expiration, source)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			zap.L().Log(level, "Cache hit", zap.String("key", key), zap.String("path", c.Request.URL.Path))

			c.Header("X-Cache", "HIT")
			c.AbortWithStatusJSON(http.StatusOK, payload)
			return
		}

		switch {
		case errors.Is(err, ErrExpired):
			metrics.CacheLookups.WithLabelValues("expired").Inc()
		case errors.Is(err, ErrInvalidated):
			metrics.CacheLookups.WithLabelValues("invalidated").Inc()
		case errors.Is(err, ErrMiss):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			zap.L().Warn("Failed to read cache entry", zap.String("key", key), zap.Error(err))
		}

		zap.L().Log(level, "Cache miss", zap.String("key", key), zap.NamedError("reason", err))

		w := &bodyWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Header("X-Cache", "MISS")

		c.Next()

		if w.Status() < 200 || w.Status() >= 300 {
			return
		}

		var resp struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(w.body.Bytes(), &resp); err != nil || resp.Status != "success" {
			return
		}

		if err := cache.Write(key, scope, identity, w.body.Bytes()); err != nil {
			metrics.CacheWrites.WithLabelValues("error").Inc()
			zap.L().Error("Failed to write cache entry", zap.String("key", key), zap.Error(err))
			return
		}

		metrics.CacheWrites.WithLabelValues("ok").Inc()
		zap.L().Log(level, "Cache stored", zap.String("key", key))
	}
}
