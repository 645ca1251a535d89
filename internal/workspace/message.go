package workspace

import (
	"context"
	"fmt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// ListMessages はプロジェクトのチャットメッセージを送信順に返す。
func (s *Service) ListMessages(ctx context.Context, projectID, identity string) ([]*model.Message, error) {
	if _, err := s.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	messages, err := s.store.Messages().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return messages, nil
}

// SendMessage はプロジェクトのチャットにメッセージを送信する。
// 送信者のユーザー名は送信時点のものを保存する。
func (s *Service) SendMessage(ctx context.Context, projectID, identity, content string) (*model.Message, error) {
	text := s.sanitizer.Plain(content)
	if err := requireText("content", text, maxMessageLength); err != nil {
		return nil, err
	}

	message := &model.Message{
		ID:        s.newID(),
		ProjectID: projectID,
		SenderID:  identity,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, _ *model.Project) (outcome, error) {
		sender, err := tx.Users().FindByID(ctx, identity)
		if err != nil {
			return outcome{}, fmt.Errorf("送信者の取得に失敗しました: %w", err)
		}
		if sender == nil {
			return outcome{}, model.NewUserNotFoundError()
		}
		message.Username = sender.Username
		if err := tx.Messages().Create(ctx, message); err != nil {
			return outcome{}, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
		}
		return outcome{
			changeType: model.ChangeSentMessage,
			update: model.UpdateMessage{
				EntityKind: model.EntityMessage,
				EntityID:   message.ID,
				Action:     model.ActionCreated,
				Payload:    message,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}
