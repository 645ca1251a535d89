package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/workspace"
)

// IdeaServiceInterface はアイデア・コメントハンドラーが必要とするサービスインターフェース。
type IdeaServiceInterface interface {
	ListIdeas(ctx context.Context, projectID, identity string) ([]*model.Idea, error)
	GetIdea(ctx context.Context, projectID, ideaID, identity string) (*model.Idea, error)
	CreateIdea(ctx context.Context, projectID, identity string, in workspace.IdeaInput) (*model.Idea, error)
	UpdateIdea(ctx context.Context, projectID, ideaID, identity string, in workspace.IdeaUpdate) (*model.Idea, error)
	DeleteIdea(ctx context.Context, projectID, ideaID, identity string) error
	Vote(ctx context.Context, projectID, ideaID, identity string, up bool) (*model.Idea, error)
	ListComments(ctx context.Context, projectID, ideaID, identity string) ([]*model.Comment, error)
	AddComment(ctx context.Context, projectID, ideaID, identity, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, projectID, ideaID, commentID, identity string) error
}

// IdeaHandler はアイデアとコメントのHTTPハンドラー。
type IdeaHandler struct {
	service IdeaServiceInterface
}

// NewIdeaHandler はIdeaHandlerを生成する。
func NewIdeaHandler(service IdeaServiceInterface) *IdeaHandler {
	return &IdeaHandler{service: service}
}

type createIdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateIdeaRequest struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Status      *model.IdeaStatus `json:"status"`
}

type addCommentRequest struct {
	Content string `json:"content"`
}

// List はプロジェクトのアイデア一覧を返す。
// GET /projects/{id}/ideas
func (h *IdeaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	ideas, err := h.service.ListIdeas(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideaViews(ideas))
}

// Get はアイデアを返す。
// GET /projects/{id}/ideas/{ideaId}
func (h *IdeaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	idea, err := h.service.GetIdea(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideaView(idea))
}

// Create はアイデアを作成する。
// POST /projects/{id}/ideas
func (h *IdeaHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createIdeaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	idea, err := h.service.CreateIdea(r.Context(), chi.URLParam(r, "id"), userID, workspace.IdeaInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ideaView(idea))
}

// Update はアイデアを編集する。statusにclosedを指定すると締め切る。
// PUT /projects/{id}/ideas/{ideaId}
func (h *IdeaHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateIdeaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	idea, err := h.service.UpdateIdea(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID, workspace.IdeaUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideaView(idea))
}

// Delete はアイデアを削除する。
// DELETE /projects/{id}/ideas/{ideaId}
func (h *IdeaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteIdea(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upvote はアイデアに賛成票を投じる。
// POST /projects/{id}/ideas/{ideaId}/upvote
func (h *IdeaHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, true)
}

// Downvote はアイデアに反対票を投じる。
// POST /projects/{id}/ideas/{ideaId}/downvote
func (h *IdeaHandler) Downvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, false)
}

func (h *IdeaHandler) vote(w http.ResponseWriter, r *http.Request, up bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	idea, err := h.service.Vote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID, up)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideaView(idea))
}

// Comments はアイデアのコメント一覧を返す。
// GET /projects/{id}/ideas/{ideaId}/comments
func (h *IdeaHandler) Comments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(comments))
}

// AddComment はアイデアにコメントを追加する。
// POST /projects/{id}/ideas/{ideaId}/comments
func (h *IdeaHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req addCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.AddComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), userID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// DeleteComment はコメントを削除する。
// DELETE /projects/{id}/ideas/{ideaId}/comments/{commentId}
func (h *IdeaHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ideaId"), chi.URLParam(r, "commentId"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
