package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// MessageServiceInterface はプロジェクトチャットのハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	ListMessages(ctx context.Context, projectID, identity string) ([]*model.Message, error)
	SendMessage(ctx context.Context, projectID, identity, content string) (*model.Message, error)
}

// MessageHandler はプロジェクトチャットのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// List はプロジェクトのチャットメッセージを送信順に返す。
// GET /projects/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	messages, err := h.service.ListMessages(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(messages))
}

// Send はプロジェクトのチャットにメッセージを送信する。
// POST /projects/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := h.service.SendMessage(r.Context(), chi.URLParam(r, "id"), userID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
