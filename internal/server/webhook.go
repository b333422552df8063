package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleWebhook needs the body exactly as sent; the signature covers the raw
// bytes, so nothing may bind or re-encode it first.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhookResponse{Success: true, Event: result.Event})
}

func (s *Server) WebhookStatus(c *gin.Context) {
	providers := s.webhookSvc.Providers()
	endpoints := make([]string, 0, len(providers))
	for _, provider := range providers {
		endpoints = append(endpoints, "/webhook/"+provider)
	}
	c.JSON(http.StatusOK, webhookStatusResponse{Success: true, Endpoints: endpoints})
}
