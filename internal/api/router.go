package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailmirror/pkg/mq"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	mailHandler *MailHandler,
	focusHandler *FocusHandler,
	wsHandler *WSHandler,
	jwtSecret string,
	db *pgxpool.Pool,
	publisher *mq.Publisher,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/folders", mailHandler.ListFolders)
		auth.GET("/messages/:id", mailHandler.GetMessage)
		auth.GET("/messages/:id/attachments/:attachment_id", mailHandler.GetAttachment)
		auth.POST("/messages/send", mailHandler.Send)
		auth.POST("/messages/:id/reply", mailHandler.Reply(false))
		auth.POST("/messages/:id/reply-all", mailHandler.Reply(true))
		auth.POST("/messages/:id/read", mailHandler.MarkRead)
		auth.POST("/messages/:id/important", mailHandler.MarkImportant)
		auth.POST("/messages/:id/category", mailHandler.UpdateCategory)
		auth.DELETE("/messages/:id", mailHandler.Delete)

		auth.GET("/focus/statistics", focusHandler.GetStatistics)
		auth.POST("/focus/items", focusHandler.CreateItem)

		auth.GET("/ws", wsHandler.Handle)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
