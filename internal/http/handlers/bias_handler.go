// README: Read-only view of the active bias model.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/modules/bias"
)

type BiasReader interface {
	Current(ctx context.Context) bias.Model
}

type BiasHandler struct {
	bias BiasReader
}

func NewBiasHandler(b BiasReader) *BiasHandler {
	return &BiasHandler{bias: b}
}

func (h *BiasHandler) Get(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.bias.Current(c.Request.Context()))
}
