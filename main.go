package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sergioamr/img-api/app"
	"github.com/sergioamr/img-api/config"
	"github.com/sergioamr/img-api/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Setup()
	if err != nil {
		panic(err)
	}

	sync, err := logger.Setup(cfg.App)
	if err != nil {
		panic(err)
	}
	defer sync()

	if cfg.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, d, err := app.NewRouter(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Host.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Server starting", zap.Int("port", cfg.Host.Port), zap.String("storage", cfg.Storage.Type))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Failed to shut down server gracefully", zap.Error(err))
	}

	d.JobQueue.Stop()
}
