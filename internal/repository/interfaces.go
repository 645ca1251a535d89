// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate record")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// ProjectRepository はプロジェクトとメンバーシップの永続化インターフェース。
type ProjectRepository interface {
	// Create はプロジェクトを作成する。
	Create(ctx context.Context, project *model.Project) error
	// FindByID は指定IDのプロジェクトをメンバー一覧付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)
	// LockByID はFindByIDと同じだが、トランザクション終了まで行を排他ロックする。
	// トランザクション外で呼び出した場合はFindByIDと同じ。
	LockByID(ctx context.Context, id string) (*model.Project, error)
	// Update はプロジェクトの名前と説明を更新する。
	Update(ctx context.Context, project *model.Project) error
	// Delete はプロジェクトを削除する。アイデア・コメント・メッセージ・メンバーはCASCADE削除される。
	// 変更履歴は削除されない。
	Delete(ctx context.Context, id string) error
	// AddMember はメンバーを追加する。既にメンバーの場合はErrDuplicateを返す。
	AddMember(ctx context.Context, projectID, userID string) error
	// RemoveMember はメンバーを削除する。
	RemoveMember(ctx context.Context, projectID, userID string) error
	// ListByUser はユーザーがオーナーまたはメンバーであるプロジェクトを返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Project, error)
}

// IdeaRepository はアイデアと投票の永続化インターフェース。
type IdeaRepository interface {
	// Create はアイデアを作成する。
	Create(ctx context.Context, idea *model.Idea) error
	// FindByID はプロジェクト内の指定IDのアイデアを投票付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, projectID, ideaID string) (*model.Idea, error)
	// Update はアイデアのタイトル・説明・状態を更新する。
	Update(ctx context.Context, idea *model.Idea) error
	// Delete はアイデアを削除する。
	Delete(ctx context.Context, projectID, ideaID string) error
	// ListByProject はプロジェクトのアイデアを作成順に返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Idea, error)
	// SetVote はユーザーの投票を設定する。valueは+1（賛成）または-1（反対）。
	SetVote(ctx context.Context, ideaID, userID string, value int) error
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, ideaID, commentID string) (*model.Comment, error)
	// Delete はコメントを削除する。
	Delete(ctx context.Context, commentID string) error
	// ListByIdea はアイデアのコメントを作成順に返す。
	ListByIdea(ctx context.Context, ideaID string) ([]*model.Comment, error)
}

// MessageRepository はプロジェクトチャットの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, message *model.Message) error
	// ListByProject はプロジェクトのメッセージを送信順に返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Message, error)
}

// ChangeRepository は変更履歴の永続化インターフェース。
// 追記専用であり、更新・削除の操作は持たない。
type ChangeRepository interface {
	// Append は変更履歴を追記する。
	Append(ctx context.Context, event *model.ChangeEvent) error
	// ListByProject はプロジェクトの変更履歴をsince以降について新しい順に返す。
	ListByProject(ctx context.Context, projectID string, since time.Time) ([]*model.ChangeEvent, error)
	// ListByActor はユーザーが行った変更履歴をsince以降について新しい順に返す。
	ListByActor(ctx context.Context, actorID string, since time.Time) ([]*model.ChangeEvent, error)
}

// FriendshipRepository はフレンド関係の永続化インターフェース。
type FriendshipRepository interface {
	// Find は2ユーザー間の関係を方向を問わず取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userA, userB string) (*model.Friendship, error)
	// Create はフレンド申請を作成する。
	Create(ctx context.Context, friendship *model.Friendship) error
	// Accept は申請を承認済みに更新する。
	Accept(ctx context.Context, requesterID, addresseeID string, at time.Time) error
	// Delete は2ユーザー間の関係を方向を問わず削除する。
	Delete(ctx context.Context, userA, userB string) error
	// ListByUser はユーザーが当事者である関係をすべて返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Friendship, error)
}

// Repositories は集約ごとのリポジトリへのアクセスを提供する。
type Repositories interface {
	Users() UserRepository
	Projects() ProjectRepository
	Ideas() IdeaRepository
	Comments() CommentRepository
	Messages() MessageRepository
	Changes() ChangeRepository
	Friendships() FriendshipRepository
}

// Store はリポジトリとトランザクション境界を提供する。
type Store interface {
	Repositories
	// WithinTx はfnを単一トランザクション内で実行する。fnがエラーを返した場合はロールバックする。
	// fnに渡されるRepositoriesはそのトランザクションに束縛される。
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}
