package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/user"
)

// ProfileServiceInterface はユーザー情報の参照に必要なインターフェース。auth.Serviceが実装する。
type ProfileServiceInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// MembershipServiceInterface は所属プロジェクトの参照に必要なインターフェース。
type MembershipServiceInterface interface {
	ListProjects(ctx context.Context, identity string) ([]*model.Project, error)
}

// ActorLogInterface は利用者自身の変更履歴の参照に必要なインターフェース。
type ActorLogInterface interface {
	ActorLog(ctx context.Context, identity string) ([]*model.ChangeEvent, error)
}

// FriendServiceInterface はフレンド関係の操作に必要なインターフェース。user.Serviceが実装する。
type FriendServiceInterface interface {
	Friends(ctx context.Context, identity string) ([]user.Friend, error)
	SendRequest(ctx context.Context, identity, targetID string) error
	Accept(ctx context.Context, identity, requesterID string) error
	Reject(ctx context.Context, identity, requesterID string) error
	Remove(ctx context.Context, identity, friendID string) error
}

// UserHandler はユーザー関連のHTTPハンドラー。
type UserHandler struct {
	profiles ProfileServiceInterface
	projects MembershipServiceInterface
	changes  ActorLogInterface
	friends  FriendServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	profiles ProfileServiceInterface,
	projects MembershipServiceInterface,
	changes ActorLogInterface,
	friends FriendServiceInterface,
) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		projects: projects,
		changes:  changes,
		friends:  friends,
	}
}

// Me はログイン中のユーザー情報を返す。
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	h.writeUser(w, r, userID)
}

// Get は指定ユーザーの公開情報を返す。
// GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	h.writeUser(w, r, chi.URLParam(r, "id"))
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := h.profiles.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// Projects はログイン中のユーザーが所属するプロジェクトを返す。
// GET /users/me/projects
func (h *UserHandler) Projects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.ListProjects(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectViews(projects))
}

// Changes はログイン中のユーザーが行った変更を新しい順に返す。
// GET /users/me/changes
func (h *UserHandler) Changes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.changes.ActorLog(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// Friends はフレンドと申請中の関係を返す。
// GET /users/me/friends
func (h *UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	friends, err := h.friends.Friends(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(friends))
}

// SendFriendRequest は指定ユーザーにフレンド申請を送る。
// POST /users/{id}/friend-request
func (h *UserHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.friends.SendRequest)
}

// AcceptFriendRequest は指定ユーザーからの申請を承認する。
// POST /users/{id}/friend-request/accept
func (h *UserHandler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.friends.Accept)
}

// RejectFriendRequest は指定ユーザーからの申請を拒否する。
// POST /users/{id}/friend-request/reject
func (h *UserHandler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.friends.Reject)
}

// RemoveFriend は指定ユーザーとのフレンド関係を解除する。
// DELETE /users/{id}/friend
func (h *UserHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.friends.Remove)
}

func (h *UserHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, identity, otherID string) error) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := apply(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
