// Package workspace はプロジェクト・メンバー・アイデア・コメント・チャットのドメインロジックを提供する。
//
// すべてのプロジェクト単位のミューテーションは次の順で処理する。
//  1. Guardによる認可（早期失敗）
//  2. トランザクション内でプロジェクト行をロックし、メンバーシップを再検査
//  3. 変更の適用とChangeEventの追記（同一トランザクション）
//  4. コミット後に更新メッセージと変更履歴を配信
package workspace

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/johndonneUZH/tracko-server-sub001/internal/change"
	"github.com/johndonneUZH/tracko-server-sub001/internal/guard"
	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
	"github.com/johndonneUZH/tracko-server-sub001/internal/security"
)

// 入力値の上限（文字数）
const (
	maxNameLength        = 100
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxCommentLength     = 2000
	maxMessageLength     = 2000
)

// Authorizer はプロジェクト単位の認可に必要なインターフェース。guard.Guardが実装する。
type Authorizer interface {
	Authorize(ctx context.Context, projectID, identity string) (*model.Project, error)
}

// Notifier はコミット済みの変更の配信に必要なインターフェース。change.Broadcasterが実装する。
type Notifier interface {
	Broadcast(update model.UpdateMessage)
	Announce(event *model.ChangeEvent)
}

// Evictor はメンバーから外れた利用者の購読解除に必要なインターフェース。realtime.Brokerが実装する。
type Evictor interface {
	Evict(identity, projectID string) int
}

// Service はワークスペースのサービス層。
type Service struct {
	store     repository.Store
	authz     Authorizer
	recorder  *change.Recorder
	notifier  Notifier
	evictor   Evictor
	sanitizer security.TextSanitizer

	now   func() time.Time
	newID func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	store repository.Store,
	authz Authorizer,
	recorder *change.Recorder,
	notifier Notifier,
	evictor Evictor,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		store:     store,
		authz:     authz,
		recorder:  recorder,
		notifier:  notifier,
		evictor:   evictor,
		sanitizer: sanitizer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// outcome はミューテーションの結果として記録・配信する内容。
type outcome struct {
	changeType model.ChangeType
	update     model.UpdateMessage
}

// mutate はプロジェクト単位のミューテーションを実行し、記録したイベントを返す。
// applyはロック済みのプロジェクトを受け取り、トランザクションに束縛されたリポジトリで変更を行う。
// 配信の失敗はイベントの記録に影響しない。
func (s *Service) mutate(
	ctx context.Context,
	projectID, identity string,
	apply func(tx repository.Repositories, project *model.Project) (outcome, error),
) (*model.ChangeEvent, error) {
	// 1. 早期の認可。存在しない・権限がない場合はトランザクションを開始しない
	if _, err := s.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}

	// 2. 認可からミューテーションまでの間のメンバー削除に備え、ロックした上で再検査する
	var (
		event  *model.ChangeEvent
		result outcome
	)
	err := s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		project, err := tx.Projects().LockByID(ctx, projectID)
		if err != nil {
			return fmt.Errorf("プロジェクトのロックに失敗しました: %w", err)
		}
		if err := guard.Check(project, projectID, identity); err != nil {
			return err
		}

		result, err = apply(tx, project)
		if err != nil {
			return err
		}

		// 3. 記録の失敗はミューテーションごとロールバックする
		event, err = s.recorder.Record(ctx, tx.Changes(), projectID, identity, result.changeType)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 4. コミット後の配信
	result.update.ProjectID = projectID
	s.notifier.Broadcast(result.update)
	s.notifier.Announce(event)
	return event, nil
}

// requireText はサニタイズ後のテキストが空でなく上限以内であることを検証する。
func requireText(field, value string, limit int) error {
	if value == "" {
		return model.NewValidationError(field + " is required")
	}
	return limitText(field, value, limit)
}

func limitText(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return model.NewValidationError(fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return nil
}
