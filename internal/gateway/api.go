package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const apiPrefix = "/api"

func (s *Server) apiAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if !s.authenticate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": CodeUnauthorized})
			return
		}
		c.Next()
	}
}

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	api := engine.Group(apiPrefix, s.apiAuthMiddleware())
	api.POST("/conversations", s.ginCreateConversation)
	api.GET("/conversations", s.ginListConversations)
	api.GET("/conversations/:id", s.ginGetConversation)
	api.POST("/conversations/:id/messages", s.ginSendMessage)
	api.GET("/conversations/:id/archive", s.ginConversationArchive)
	api.DELETE("/conversations/:id", s.ginDeleteConversation)
}

func (s *Server) ginMetrics() gin.HandlerFunc {
	gatherer := s.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) ginCreateConversation(c *gin.Context) {
	ctrl := s.Registry.Create()
	c.JSON(http.StatusCreated, ctrl.Snapshot())
}

func (s *Server) ginListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": s.Registry.List()})
}

func (s *Server) ginGetConversation(c *gin.Context) {
	ctrl, err := s.Registry.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (s *Server) ginSendMessage(c *gin.Context) {
	id := c.Param("id")
	ctrl, err := s.Registry.Get(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var body MessageSendParams
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "code": CodeBadRequest})
		return
	}
	result, err := s.submit(id, ctrl, body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// ginConversationArchive returns archived exchanges; it works after the conversation is closed.
func (s *Server) ginConversationArchive(c *gin.Context) {
	records, err := s.opts.Archive.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": records})
}

func (s *Server) ginDeleteConversation(c *gin.Context) {
	if err := s.Registry.Remove(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
