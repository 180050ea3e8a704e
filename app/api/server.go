package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/psp-tools/group-archive/app/cfg"
)

// NewServer creates the HTTP server with all routes configured. Every
// endpoint is read-only; writes happen only through the sync tasks.
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS: the archive is consumed by a browser frontend on another origin.
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, If-None-Match")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/messages", handler.ListMessages)
	r.GET("/messages/:id", handler.GetMessage)
	r.GET("/topics/:id/messages", handler.GetTopicMessages)
	r.GET("/hashtags", handler.ListHashtags)

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "Group Archive",
			"version":     cfg.Get().Version,
			"description": "Read-only archive of a groups.io mailing list with search, hashtags, and classifieds metadata",
			"endpoints": map[string]string{
				"messages": "/messages?cursor=<id>&limit=<n>&since=<rfc3339>&hashtags=<a,b>&search=<q>",
				"message":  "/messages/<id>",
				"topic":    "/topics/<id>/messages",
				"hashtags": "/hashtags",
				"stats":    "/stats",
				"health":   "/health",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
