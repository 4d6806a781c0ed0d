package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sergioamr/img-api/app/content"
	"github.com/sergioamr/img-api/app/lists"
	mediaapi "github.com/sergioamr/img-api/app/media"
	"github.com/sergioamr/img-api/app/root"
	"github.com/sergioamr/img-api/app/user"
	"github.com/sergioamr/img-api/config"
	"github.com/sergioamr/img-api/db"
	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/diskcache"
	listsvc "github.com/sergioamr/img-api/internal/lists"
	"github.com/sergioamr/img-api/internal/logger"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/service"
	"github.com/sergioamr/img-api/internal/storage"
	"github.com/sergioamr/img-api/pkg/middleware"
	"github.com/sergioamr/img-api/pkg/security"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const tokenTTL = 30 * 24 * time.Hour

// NewDeps opens the database, the blob backend and the response cache
// described by cfg.
func NewDeps(ctx context.Context, cfg *config.Config) (*internal.Deps, error) {
	conn, err := db.New(cfg.Database, logger.GormLevel(cfg.App.LogLevel))
	if err != nil {
		return nil, err
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage, %w", cfg.Storage.Type, err)
	}

	dc, err := diskcache.NewOnDisk(cfg.Cache.Path,
		diskcache.WithLocale(cfg.Cache.Locale),
		diskcache.WithSourceStat(blobs.ModTime),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize response cache, %w", err)
	}

	return &internal.Deps{
		Config:   cfg,
		DB:       conn,
		Media:    media.NewStore(conn, blobs),
		Lists:    listsvc.New(conn),
		Cache:    dc,
		JobQueue: service.NewJobQueue(cfg.Convert.Workers, cfg.Convert.MaxJobs),
		Tokens:   security.NewTokenIssuer(cfg.Security.JWTSecret, tokenTTL),
	}, nil
}

// NewRouter builds the dependencies and the HTTP router, and starts the
// conversion workers.
func NewRouter(ctx context.Context, cfg *config.Config) (*gin.Engine, *internal.Deps, error) {
	d, err := NewDeps(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := newResponseStore(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	router := Routes(ctx, d, store)
	d.JobQueue.StartWorkerPool()

	if ttl := cfg.Security.AnonTTLHours; ttl > 0 {
		go service.AnonCleanup(ctx, time.Hour, time.Duration(ttl)*time.Hour, d.DB, d.Media)
	}

	return router, d, nil
}

func newResponseStore(cfg config.Cache) (persist.CacheStore, error) {
	if cfg.Store == "redis" {
		s, err := newRedisStore(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis, %w", err)
		}
		return s, nil
	}

	return persist.NewMemoryStore(time.Minute), nil
}

// Routes registers every endpoint on a new engine.
func Routes(ctx context.Context, d *internal.Deps, store persist.CacheStore) *gin.Engine {
	cfg := d.Config
	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     cfg.Host.CorsOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length", "X-Cache", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		ginzap.RecoveryWithZap(zap.L(), true),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("username"); v != "" {
					fields = append(fields, zap.String("username", v))
				}

				return fields
			},
		}),
		middleware.NewMetricsMiddleware(),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	// cacheFor keeps a short-lived copy of a response per user and URI.
	cacheFor := func(sec int) gin.HandlerFunc {
		return cache.Cache(store, time.Second*time.Duration(sec),
			cache.WithCacheStrategyByRequest(func(c *gin.Context) (bool, cache.Strategy) {
				return true, cache.Strategy{
					CacheKey: c.GetString("userID") + ":" + c.Request.RequestURI,
				}
			}),
		)
	}

	expiration := time.Duration(cfg.Cache.Expiration) * time.Second
	perUser := d.Cache.Middleware(diskcache.ScopeIdentity, expiration)
	ownPosts := d.Cache.Middleware(diskcache.ScopeIdentity, expiration, diskcache.WithCondition(mediaapi.OwnPosts))

	jwt := middleware.NewJWTMiddleware(d.DB, d.Tokens)
	optionalJWT := middleware.NewOptionalJWTMiddleware(d.DB, d.Tokens)
	turnstile := middleware.NewTurnstileMiddleware(cfg.Turnstile)
	bodyLimit := middleware.BodySizeLimiter(cfg.Upload.MaxSize)
	rateLimiter := middleware.RateLimiterMiddleware(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Security.RateLimit,
		Burst:             cfg.Security.RateLimit * 2,
		CleanupInterval:   time.Minute,
		TTL:               5 * time.Minute,
	})

	// GET /metrics			-> Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat		-> Used to check if the server is alive
		a.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/validate		-> Validates a JWT token
		a.GET("/validate", jwt, cacheFor(15), root.Validate)
	}

	m := a.Group("/media")
	{
		// POST /api/media/upload		-> Uploads images for the logged in user
		m.POST("/upload", bodyLimit, jwt, func(c *gin.Context) { mediaapi.MediaUpload(c, d) })

		// POST /api/media/upload_from_web	-> Uploads images, creating an anonymous user if needed
		m.POST("/upload_from_web", bodyLimit, optionalJWT, turnstile, func(c *gin.Context) { mediaapi.MediaUploadFromWeb(c, d) })

		// GET /api/media/get/:id		-> Serves an image, converting it when an extension is given
		m.GET("/get/:id", optionalJWT, func(c *gin.Context) { mediaapi.MediaGet(c, d) })

		// GET /api/media/info/:id		-> Returns an image's metadata
		m.GET("/info/:id", optionalJWT,
			d.Cache.Middleware(diskcache.ScopeIdentity, expiration,
				diskcache.WithSource(mediaapi.MediaSource(d)),
				diskcache.WithCondition(mediaapi.OwnsMedia(d)),
			),
			func(c *gin.Context) { mediaapi.MediaInfo(c, d) })

		// GET /api/media/posts/:username	-> Lists a user's images
		m.GET("/posts/:username", optionalJWT, ownPosts, func(c *gin.Context) { mediaapi.MediaPosts(c, d) })

		// POST /api/media/posts/:id/set/:mode	-> Makes an image public or private
		m.POST("/posts/:id/set/:mode", jwt, func(c *gin.Context) { mediaapi.MediaSetVisibility(c, d) })

		// PATCH /api/media/:id			-> Edits an image's metadata
		m.PATCH("/:id", jwt, func(c *gin.Context) { mediaapi.MediaEdit(c, d) })

		// DELETE /api/media/:id		-> Deletes an image
		m.DELETE("/:id", jwt, func(c *gin.Context) { mediaapi.MediaDelete(c, d) })
	}

	l := a.Group("/media_list")
	{
		// POST /api/media_list/create		-> Creates a list
		l.POST("/create", jwt, func(c *gin.Context) { lists.ListCreate(c, d) })

		// GET /api/media_list/get		-> Returns every list of the logged in user
		l.GET("/get", jwt, perUser, func(c *gin.Context) { lists.ListMine(c, d) })

		// GET /api/media_list/get_by_id/:id	-> Returns a list if it's public or owned
		l.GET("/get_by_id/:id", optionalJWT, func(c *gin.Context) { lists.ListGet(c, d) })

		// PATCH /api/media_list/:id		-> Updates a list
		l.PATCH("/:id", jwt, func(c *gin.Context) { lists.ListUpdate(c, d) })

		// DELETE /api/media_list/clear_all	-> Deletes all lists of the logged in user
		l.DELETE("/clear_all", jwt, func(c *gin.Context) { lists.ListClearAll(c, d) })

		// DELETE /api/media_list/:id		-> Deletes a list
		l.DELETE("/:id", jwt, func(c *gin.Context) { lists.ListDelete(c, d) })
	}

	u := a.Group("/user", jwt)
	{
		// GET /api/user/stats			-> Returns storage usage
		u.GET("/stats", perUser, func(c *gin.Context) { user.UserStats(c, d) })

		// POST /api/user/media/:media_id/:action/:list	-> Appends, removes or toggles an image on a list
		u.POST("/media/:media_id/:action/:list", func(c *gin.Context) { lists.ListPerform(c, d) })
	}

	ct := a.Group("/content", jwt)
	{
		// POST /api/content/:section/update	-> Merges values into a section
		ct.POST("/:section/update", func(c *gin.Context) { content.ContentUpdate(c, d) })

		// GET /api/content/:section/get	-> Returns a section
		ct.GET("/:section/get", perUser, func(c *gin.Context) { content.ContentGet(c, d) })
	}

	return router
}
