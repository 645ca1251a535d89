package model

import (
	"slices"
	"time"
)

// Project は共同作業の単位となるプロジェクトを表す。
// Membersにオーナーは含まれないが、HasMemberではオーナーもメンバーとして扱う。
type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasMember はユーザーがオーナーまたはメンバーかどうかを返す。
func (p *Project) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	return p.OwnerID == userID || slices.Contains(p.Members, userID)
}

// IdeaStatus はアイデアの状態を表す。
type IdeaStatus string

const (
	IdeaOpen   IdeaStatus = "open"
	IdeaClosed IdeaStatus = "closed"
)

// Valid は定義済みの状態かどうかを返す。
func (s IdeaStatus) Valid() bool {
	return s == IdeaOpen || s == IdeaClosed
}

// Idea はプロジェクト内のアイデアを表す。
type Idea struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      IdeaStatus `json:"status"`
	Upvotes     []string   `json:"upvotes"`
	Downvotes   []string   `json:"downvotes"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Comment はアイデアに対するコメントを表す。
type Comment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	IdeaID    string    `json:"ideaId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message はプロジェクトのチャットメッセージを表す。
// Usernameは送信時点の送信者のユーザー名。
type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	SenderID  string    `json:"senderId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
