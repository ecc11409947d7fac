package handlers

import (
	"github.com/chatrelay/chatrelay/internal/chat"
)

type Handler struct {
	Sessions *chat.Manager
}

func NewHandler(sessions *chat.Manager) *Handler {
	return &Handler{Sessions: sessions}
}
