package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/app"
	"chatrelay/internal/logger"
)

type ChatHandler struct {
	chatService *app.ChatService
	log         *logger.Logger
}

type ChatStreamRequest struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type ClearHistoryRequest struct {
	Username string `json:"username"`
}

type historyItem struct {
	Role    string    `json:"role"`
	Message string    `json:"message"`
	Created time.Time `json:"created"`
}

func NewChatHandler(chatService *app.ChatService, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatHandler{chatService: chatService, log: log}
}

// Stream relays generation output to the client as raw text, chunk by chunk.
// Errors before the first chunk produce a clean JSON response; once the body
// is committed nothing more can be signalled, only logged.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"response": "Invalid request"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"response": "Streaming unsupported"})
		return
	}

	wrote := false
	_, err := h.chatService.StreamChat(c.Request.Context(), app.StreamChatInput{
		Username: req.Username,
		Message:  req.Message,
	}, func(chunk string) error {
		if !wrote {
			// Headers go out with the first chunk; earlier failures still get
			// a clean JSON response.
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
		}
		if _, writeErr := c.Writer.WriteString(chunk); writeErr != nil {
			return writeErr
		}
		wrote = true
		flusher.Flush()
		return nil
	})
	if err != nil {
		if wrote {
			h.log.Warn("stream failed after first byte", "error", err)
			return
		}
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"response": "Invalid request"})
		default:
			h.log.Error("chat stream failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"response": "Generation unavailable"})
		}
	}
}

// History returns up to the 50 most recent turns for the user, newest first.
// An omitted user yields an empty list, matching the original contract.
func (h *ChatHandler) History(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		c.JSON(http.StatusOK, []historyItem{})
		return
	}

	turns, err := h.chatService.GetHistory(c.Request.Context(), user)
	if err != nil {
		h.log.Error("get history failed", "username", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "History unavailable"})
		return
	}

	items := make([]historyItem, 0, len(turns))
	for _, turn := range turns {
		items = append(items, historyItem{
			Role:    turn.Role,
			Message: turn.Message,
			Created: turn.Created,
		})
	}
	c.JSON(http.StatusOK, items)
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	var req ClearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No username"})
		return
	}

	if err := h.chatService.ClearHistory(c.Request.Context(), req.Username); err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No username"})
			return
		}
		h.log.Error("clear history failed", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Clear failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
