package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/server/api"
	"github.com/parrotgw/parrot/internal/server/chat"
	"github.com/parrotgw/parrot/internal/server/dependencies"
	"github.com/parrotgw/parrot/internal/server/middleware"
)

// New builds the HTTP server around a gin engine.
func New(config Config) *Server {
	config = config.WithDefaults()

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())

	return &Server{
		Config: config,
		Engine: engine,
	}
}

// Server is the HTTP ingress.
type Server struct {
	*gin.Engine

	Config Config
	server *http.Server
}

// Run starts serving and blocks until shutdown.
func (srv *Server) Run() error {
	log.Info(context.Background(), "run server",
		log.String("name", srv.Config.Name),
		log.String("host", srv.Config.Host),
		log.Int("port", srv.Config.Port),
	)

	addr := fmt.Sprintf("%s:%d", srv.Config.Host, srv.Config.Port)
	srv.server = &http.Server{
		Addr:        addr,
		Handler:     srv.Engine,
		ReadTimeout: srv.Config.ReadTimeout,
		WriteTimeout: max(srv.Config.RequestTimeout, srv.Config.LLMRequestTimeout),
	}

	err := srv.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the server gracefully.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.server == nil {
		return nil
	}

	return srv.server.Shutdown(ctx)
}

// Run assembles the application and blocks until exit.
func Run(opts ...fx.Option) {
	constructors := []any{
		chat.NewProcessor,
		api.NewChatCompletionHandlers,
		api.NewOpsHandlers,
		New,
	}

	app := fx.New(
		append([]fx.Option{
			fx.NopLogger,
			fx.Provide(constructors...),
			dependencies.Module,
			fx.Invoke(func(cfg log.Config) {
				log.SetGlobalConfig(cfg)
				slog.SetDefault(log.GetGlobalLogger().AsSlog())
			}),
			fx.Invoke(func(lc fx.Lifecycle, worker *cache.SweepWorker) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return worker.Start(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return worker.Stop(ctx)
					},
				})
			}),
			fx.Invoke(SetupRoutes),
		}, opts...)...,
	)
	app.Run()
}
