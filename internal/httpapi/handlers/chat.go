package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/chatrelay/chatrelay/internal/ai"
	"github.com/chatrelay/chatrelay/internal/chat"
	"github.com/chatrelay/chatrelay/internal/common"
	"github.com/gin-gonic/gin"
)

const SessionIDHeader = "X-Session-ID"

// chatRequest covers both request shapes on POST /chat. The presence of
// "messages" selects the stateless variant; otherwise the session-scoped
// variant applies. Sampling fields are untyped so bad values degrade to
// defaults instead of failing the bind.
type chatRequest struct {
	// session-scoped variant
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`

	// stateless variant
	Messages    []ai.Message `json:"messages"`
	Model       string       `json:"model"`
	System      string       `json:"system"`
	Temperature any          `json:"temperature"`
	MaxTokens   any          `json:"max_tokens"`
	TopP        any          `json:"top_p"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json", err.Error())
		return
	}

	if req.Messages != nil {
		h.chatStateless(c, req)
		return
	}
	h.chatSession(c, req)
}

// chatSession streams the model reply as raw text bytes and lets the session
// commit the exchange in the background.
func (h *Handler) chatSession(c *gin.Context, req chatRequest) {
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		id, err := common.NewULID()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, "internal error")
			return
		}
		sessionID = id
	}

	rc, err := h.Sessions.Session(sessionID).HandleMessage(c.Request.Context(), req.Message)
	if err != nil {
		var ge *chat.GatewayError
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			common.Fail(c, http.StatusBadRequest, "message is required")
		case errors.As(err, &ge):
			common.Fail(c, http.StatusBadGateway, "model invocation failed", ge.Err.Error())
		default:
			common.Fail(c, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header(SessionIDHeader, sessionID)
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	buf := make([]byte, 4*1024)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				// client went away; the session keeps collecting
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				// bytes are already on the wire: the stream just ends early
				log.Printf("httpapi: session %s stream ended early: %v", sessionID, err)
			}
			return
		}
	}
}

// chatStateless forwards the caller's turns as-is and answers with a JSON
// envelope instead of a stream. Nothing is persisted.
func (h *Handler) chatStateless(c *gin.Context, req chatRequest) {
	if len(req.Messages) == 0 {
		common.Fail(c, http.StatusBadRequest, "messages must not be empty")
		return
	}
	for _, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" && m.Role != "system" {
			common.Fail(c, http.StatusBadRequest, "invalid role", m.Role)
			return
		}
		if strings.TrimSpace(m.Content) == "" {
			common.Fail(c, http.StatusBadRequest, "message content must not be empty")
			return
		}
	}

	opts := h.Sessions.Options().Merge(req.Model, req.System, req.Temperature, req.MaxTokens, req.TopP)

	raw, err := h.Sessions.Provider().Chat(c.Request.Context(), req.Messages, opts)
	if err != nil {
		common.Fail(c, http.StatusBadGateway, "model invocation failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":    opts.Model,
		"response": strings.TrimSpace(raw),
		"raw":      raw,
	})
}
