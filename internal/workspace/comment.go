package workspace

import (
	"context"
	"fmt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// ListComments はアイデアのコメントを作成順に返す。
func (s *Service) ListComments(ctx context.Context, projectID, ideaID, identity string) ([]*model.Comment, error) {
	if _, err := s.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	if _, err := findIdea(ctx, s.store, projectID, ideaID); err != nil {
		return nil, err
	}
	comments, err := s.store.Comments().ListByIdea(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// AddComment はアイデアにコメントを追加する。
func (s *Service) AddComment(ctx context.Context, projectID, ideaID, identity, content string) (*model.Comment, error) {
	text := s.sanitizer.Plain(content)
	if err := requireText("content", text, maxCommentLength); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:        s.newID(),
		ProjectID: projectID,
		IdeaID:    ideaID,
		AuthorID:  identity,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, _ *model.Project) (outcome, error) {
		if _, err := findIdea(ctx, tx, projectID, ideaID); err != nil {
			return outcome{}, err
		}
		if err := tx.Comments().Create(ctx, comment); err != nil {
			return outcome{}, fmt.Errorf("コメントの作成に失敗しました: %w", err)
		}
		return outcome{
			changeType: model.ChangeAddedComment,
			update: model.UpdateMessage{
				EntityKind: model.EntityComment,
				EntityID:   comment.ID,
				Action:     model.ActionCreated,
				Payload:    comment,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment はコメントを削除する。作成者またはプロジェクトオーナーのみ実行できる。
func (s *Service) DeleteComment(ctx context.Context, projectID, ideaID, commentID, identity string) error {
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		if _, err := findIdea(ctx, tx, projectID, ideaID); err != nil {
			return outcome{}, err
		}
		comment, err := tx.Comments().FindByID(ctx, ideaID, commentID)
		if err != nil {
			return outcome{}, fmt.Errorf("コメントの取得に失敗しました: %w", err)
		}
		if comment == nil {
			return outcome{}, model.NewCommentNotFoundError(commentID)
		}
		if comment.AuthorID != identity && project.OwnerID != identity {
			return outcome{}, model.NewNotAuthorError("コメント")
		}
		if err := tx.Comments().Delete(ctx, commentID); err != nil {
			return outcome{}, fmt.Errorf("コメントの削除に失敗しました: %w", err)
		}
		return outcome{
			changeType: model.ChangeDeletedComment,
			update: model.UpdateMessage{
				EntityKind: model.EntityComment,
				EntityID:   commentID,
				Action:     model.ActionDeleted,
				Payload:    comment,
			},
		}, nil
	})
	return err
}
