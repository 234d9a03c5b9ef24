// Package router megaservice 路由注册。
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/handler"
	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/pkg/infra/middleware"
)

// Handlers 路由依赖的处理器。Conversation 为 nil 时不注册会话与通函路由。
type Handlers struct {
	ChatQnA      *handler.ChatQnAHandler
	Conversation *handler.ConversationHandler
	Circular     *handler.CircularHandler
	Health       *middleware.HealthManager
	Metrics      *metrics.Metrics
}

// Register 注册 megaservice 的全部路由。
func Register(r gin.IRouter, h Handlers) {
	logger.Info("Registering megaservice routes...")

	middleware.RegisterHealthRoutes(r, h.Health)
	middleware.RegisterVersionRoutes(r)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/chatqna", h.ChatQnA.ChatQnA)
	}

	if h.Conversation == nil {
		logger.Info("conversation store disabled, conversation routes skipped")
		return
	}

	conv := r.Group("/conversation")
	{
		conv.POST("/new", h.Conversation.New)
		conv.POST("/:id", h.Conversation.Chat)
		conv.GET("/:id", h.Conversation.Get)
		conv.DELETE("/:id", h.Conversation.Delete)
	}
	r.GET("/conversations", h.Conversation.List)

	if h.Circular != nil {
		circ := r.Group("/circular")
		{
			circ.PATCH("/update", h.Circular.Update)
			circ.GET("/get", h.Circular.Get)
		}
	}

	logger.Info("HTTP routes registered")
}
