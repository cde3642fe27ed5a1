package router

import (
	"docuvault/internal/handler"
	"docuvault/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// InitNodeRouter builds a storage node's internal routes.
func InitNodeRouter(h *handler.NodeHandler, tokenSecret string, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.LoggerMiddleware(log))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/internal/v1")
	v1.Use(utils.ServiceAuthMiddleware(tokenSecret))
	{
		v1.GET("/healthz", h.Health)
		v1.POST("/objects", h.Stage)
		v1.POST("/objects/discard", h.Discard)
		v1.POST("/objects/:id/commit", h.Commit)
		v1.GET("/objects/:id", h.Fetch)
	}
	return r
}

// InitProxyRouter builds the public object API.
func InitProxyRouter(h *handler.ProxyHandler, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.LoggerMiddleware(log), utils.CORSMiddleware())

	api := r.Group("/api")
	{
		api.GET("/topology", h.Topology)

		objects := api.Group("/objects")
		objects.POST("", h.Upload)
		objects.POST("/discard", h.Discard)
		objects.POST("/:id/commit", h.Commit)
		objects.GET("/:id", h.Fetch)
	}
	return r
}
