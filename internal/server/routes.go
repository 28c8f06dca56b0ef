package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/parrotgw/parrot/internal/server/api"
	"github.com/parrotgw/parrot/internal/server/middleware"
)

// Handlers collects the route handlers for injection.
type Handlers struct {
	fx.In

	Chat *api.ChatCompletionHandlers
	Ops  *api.OpsHandlers
}

// SetupRoutes attaches middleware and routes to the server.
func SetupRoutes(server *Server, handlers Handlers) {
	server.Use(middleware.WithTrace())
	server.Use(middleware.AccessLog())

	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		server.Use(cors.New(corsConfig))
	}

	publicGroup := server.Group("", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		publicGroup.GET("/health", handlers.Ops.Health)
	}

	apiGroup := server.Group("/v1", middleware.WithTimeout(server.Config.LLMRequestTimeout))
	{
		apiGroup.POST("/chat/completions", handlers.Chat.ChatCompletion)
	}

	opsGroup := server.Group("/v1/cache", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		opsGroup.GET("/stats", handlers.Ops.CacheStats)
		opsGroup.POST("/clear", handlers.Ops.CacheClear)
		opsGroup.POST("/golden", handlers.Ops.CacheGolden)
	}
}
