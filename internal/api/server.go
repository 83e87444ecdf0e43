// Package api wires the gateway's HTTP surface: gin routes for the client
// endpoints (spec §6), request parsing, and client API key authentication.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/dispatch"
)

// New builds a Server and its gin.Engine with every route registered.
func New(store *config.Store, dispatcher *dispatch.Dispatcher) (*Server, *gin.Engine) {
	if !store.Get().Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestID(), recoverMiddleware(), bodyLimit(store))

	srv := &Server{Store: store, Dispatcher: dispatcher}

	engine.GET("/v1/models", srv.ListModels)

	v1 := engine.Group("/v1")
	v1.Use(clientAuth(store))
	{
		v1.POST("/chat/completions", srv.ChatCompletions)
		v1.POST("/messages", srv.ClaudeMessages)
		v1.POST("/responses", srv.OpenAIResponses)
	}

	return srv, engine
}
