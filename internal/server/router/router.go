package router

import (
	"net/http"

	"github.com/eatclean/mediagw/internal/server/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChannelHandler defines the interface for the method channel handler.
type ChannelHandler interface {
	HandleChannel(c *gin.Context)
	HandleBatch(c *gin.Context)
}

// OSSHandler defines the interface for the credential and signing routes.
type OSSHandler interface {
	GetSTS(c *gin.Context)
	SignURLs(c *gin.Context)
}

// New wires up handlers to the Gin engine. ossHandler and metricsHandler
// may be nil.
func New(apiKey string, channelHandler ChannelHandler, ossHandler OSSHandler, logger *zap.Logger, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.WithLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders(middleware.APIKeyHeader)
	corsConfig.AddExposeHeaders("X-Batch-ID")
	r.Use(cors.New(corsConfig))

	// Health check endpoint (no auth)
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1", middleware.WithAPIKey(apiKey))
	{
		v1.POST("/channels/:channel", channelHandler.HandleChannel)
		v1.GET("/batches/:id", channelHandler.HandleBatch)

		if ossHandler != nil {
			v1.GET("/oss/sts", ossHandler.GetSTS)
			v1.POST("/oss/sign", ossHandler.SignURLs)
		}
	}

	return r
}
