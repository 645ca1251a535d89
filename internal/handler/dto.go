package handler

import (
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// userResponse はユーザー情報のレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Name: u.Name, CreatedAt: u.CreatedAt}
}

func newUserResponses(users []*model.User) []userResponse {
	result := make([]userResponse, 0, len(users))
	for _, u := range users {
		result = append(result, newUserResponse(u))
	}
	return result
}

// authResponse は登録・ログインのレスポンス。
type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

// projectView は配列フィールドがnullにならないようにしたプロジェクトのコピーを返す。
func projectView(p *model.Project) model.Project {
	v := *p
	v.Members = nonNil(p.Members)
	return v
}

func projectViews(projects []*model.Project) []model.Project {
	result := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		result = append(result, projectView(p))
	}
	return result
}

func ideaView(i *model.Idea) model.Idea {
	v := *i
	v.Upvotes = nonNil(i.Upvotes)
	v.Downvotes = nonNil(i.Downvotes)
	return v
}

func ideaViews(ideas []*model.Idea) []model.Idea {
	result := make([]model.Idea, 0, len(ideas))
	for _, i := range ideas {
		result = append(result, ideaView(i))
	}
	return result
}

// nonNil は空配列をnullではなく[]としてエンコードするための変換。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
