package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FurmanovVitaliy/logger"
	"github.com/gin-gonic/gin"
)

type App struct {
	log    *slog.Logger
	server *http.Server
	port   int
}

// New builds the HTTP server around an already-routed gin engine.
func New(log *slog.Logger, port int, timeout time.Duration, engine *gin.Engine) *App {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      engine,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	return &App{
		log:    log,
		server: server,
		port:   port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.App.Run"

	log := a.log.With(
		slog.String("op", op),
	)

	log.Info("http server is running", slog.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.App.Stop"
	log := a.log.With(slog.String("op", op))

	log.Info("stopping http server", slog.Int("port", a.port))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", logger.ErrAttr(err))
	}
}
