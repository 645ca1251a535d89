package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndonneUZH/tracko-server-sub001/internal/change"
	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/workspace"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	CreateProject(ctx context.Context, identity string, in workspace.ProjectInput) (*model.Project, error)
	GetProject(ctx context.Context, projectID, identity string) (*model.Project, error)
	UpdateProject(ctx context.Context, projectID, identity string, in workspace.ProjectUpdate) (*model.Project, error)
	DeleteProject(ctx context.Context, projectID, identity string) error
	ListMembers(ctx context.Context, projectID, identity string) ([]*model.User, error)
	AddMember(ctx context.Context, projectID, identity, userID string) (*workspace.MemberPayload, error)
	RemoveMember(ctx context.Context, projectID, identity, userID string) error
}

// ChangeQueryInterface はプロジェクトの変更履歴の参照に必要なインターフェース。change.Queryが実装する。
type ChangeQueryInterface interface {
	ProjectLog(ctx context.Context, projectID, identity string) ([]*model.ChangeEvent, error)
	Daily(ctx context.Context, projectID, identity string, days int) ([]change.DailyCount, error)
	Contributions(ctx context.Context, projectID, identity, userID string, days int) ([]change.Contribution, error)
}

// ProjectHandler はプロジェクト・メンバー・変更履歴のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
	changes ChangeQueryInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface, changes ChangeQueryInterface) *ProjectHandler {
	return &ProjectHandler{service: service, changes: changes}
}

type createProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"userId"`
}

// Create はプロジェクトを作成する。
// POST /projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := h.service.CreateProject(r.Context(), userID, workspace.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Members:     req.Members,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectView(project))
}

// Get はプロジェクトを返す。
// GET /projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(project))
}

// Update はプロジェクト設定を変更する。
// PUT /projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req updateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := h.service.UpdateProject(r.Context(), chi.URLParam(r, "id"), userID, workspace.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(project))
}

// Delete はプロジェクトを削除する。
// DELETE /projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProject(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members はオーナーを含むメンバー一覧を返す。
// GET /projects/{id}/members
func (h *ProjectHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListMembers(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponses(users))
}

// AddMember はメンバーを追加する。
// POST /projects/{id}/members
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		handleServiceError(w, model.NewValidationError("userId は必須です。"))
		return
	}

	member, err := h.service.AddMember(r.Context(), chi.URLParam(r, "id"), userID, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// RemoveMember はメンバーを外す。自分自身を指定した場合は離脱となる。
// DELETE /projects/{id}/members/{userId}
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	err := h.service.RemoveMember(r.Context(), chi.URLParam(r, "id"), userID, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Changes はプロジェクトの変更履歴を新しい順に返す。
// GET /projects/{id}/changes
func (h *ProjectHandler) Changes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.changes.ProjectLog(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// Daily は日別の変更件数を返す。
// GET /projects/{id}/changes/daily?days=N
func (h *ProjectHandler) Daily(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	counts, err := h.changes.Daily(r.Context(), chi.URLParam(r, "id"), userID, days)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Contributions は種別ごとの日別件数を返す。userIdを指定するとその利用者に絞り込む。
// GET /projects/{id}/contributions?days=N&userId=U
func (h *ProjectHandler) Contributions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.changes.Contributions(r.Context(), chi.URLParam(r, "id"), userID, r.URL.Query().Get("userId"), days)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
