package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/queue"
)

type Handlers struct {
	Batch *BatchHandler
}

func NewHandlers(q queue.Queue, inboxRoot string, log logger.Logger) *Handlers {
	return &Handlers{
		Batch: NewBatchHandler(q, inboxRoot, log),
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
