package httpapi

import (
	"net/http"

	"github.com/chatrelay/chatrelay/internal/chat"
	"github.com/chatrelay/chatrelay/internal/common"
	"github.com/chatrelay/chatrelay/internal/httpapi/handlers"
	"github.com/chatrelay/chatrelay/internal/httpapi/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(sessions *chat.Manager) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:   []string{handlers.SessionIDHeader, middleware.RequestIDHeader},
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(sessions)

	r.GET("/health", h.Health)
	r.POST("/chat", h.Chat)

	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.POST("/chat", h.Chat)

	return r
}
