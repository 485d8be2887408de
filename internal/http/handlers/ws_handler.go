// README: WebSocket subscription to a corridor's snapshot stream.
package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greencorridor/internal/types"
)

type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, corridorID types.ID) error
}

type StreamHandler struct {
	stream StreamServer
}

func NewStreamHandler(stream StreamServer) *StreamHandler {
	return &StreamHandler{stream: stream}
}

// Subscribe upgrades the connection. On failure the upgrader has already written the
// response, so the error is only logged.
func (h *StreamHandler) Subscribe(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing corridor id")
		return
	}
	if err := h.stream.ServeWS(c.Writer, c.Request, types.ID(id)); err != nil {
		log.Printf("[ws] subscribe corridor %s: %v", id, err)
	}
}
