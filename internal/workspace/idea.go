package workspace

import (
	"context"
	"fmt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// IdeaInput はアイデア作成の入力。
type IdeaInput struct {
	Title       string
	Description string
}

// IdeaUpdate はアイデア編集の入力。nilのフィールドは変更しない。
// Statusをclosedにするとアイデアを締め切る。
type IdeaUpdate struct {
	Title       *string
	Description *string
	Status      *model.IdeaStatus
}

// ListIdeas はプロジェクトのアイデアを作成順に返す。
func (s *Service) ListIdeas(ctx context.Context, projectID, identity string) ([]*model.Idea, error) {
	if _, err := s.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	ideas, err := s.store.Ideas().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("アイデア一覧の取得に失敗しました: %w", err)
	}
	return ideas, nil
}

// GetIdea はアイデアを投票付きで返す。
func (s *Service) GetIdea(ctx context.Context, projectID, ideaID, identity string) (*model.Idea, error) {
	if _, err := s.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	return findIdea(ctx, s.store, projectID, ideaID)
}

// CreateIdea はアイデアを作成する。
func (s *Service) CreateIdea(ctx context.Context, projectID, identity string, in IdeaInput) (*model.Idea, error) {
	title := s.sanitizer.Plain(in.Title)
	if err := requireText("title", title, maxTitleLength); err != nil {
		return nil, err
	}
	description := s.sanitizer.Rich(in.Description)
	if err := limitText("description", description, maxDescriptionLength); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	idea := &model.Idea{
		ID:          s.newID(),
		ProjectID:   projectID,
		OwnerID:     identity,
		Title:       title,
		Description: description,
		Status:      model.IdeaOpen,
		Upvotes:     []string{},
		Downvotes:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, _ *model.Project) (outcome, error) {
		if err := tx.Ideas().Create(ctx, idea); err != nil {
			return outcome{}, fmt.Errorf("アイデアの作成に失敗しました: %w", err)
		}
		return outcome{
			changeType: model.ChangeAddedIdea,
			update: model.UpdateMessage{
				EntityKind: model.EntityIdea,
				EntityID:   idea.ID,
				Action:     model.ActionCreated,
				Payload:    idea,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return idea, nil
}

// UpdateIdea はアイデアを編集する。作成者またはプロジェクトオーナーのみ実行できる。
// 状態をopenからclosedにした場合はCLOSED_IDEA、それ以外はMODIFIED_IDEAとして記録する。
func (s *Service) UpdateIdea(ctx context.Context, projectID, ideaID, identity string, in IdeaUpdate) (*model.Idea, error) {
	if in.Title == nil && in.Description == nil && in.Status == nil {
		return nil, model.NewValidationError("nothing to update")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, model.NewValidationError("status must be open or closed")
	}

	var updated *model.Idea
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		idea, err := findIdea(ctx, tx, projectID, ideaID)
		if err != nil {
			return outcome{}, err
		}
		if idea.OwnerID != identity && project.OwnerID != identity {
			return outcome{}, model.NewNotAuthorError("アイデア")
		}

		changeType := model.ChangeModifiedIdea
		if in.Title != nil {
			title := s.sanitizer.Plain(*in.Title)
			if err := requireText("title", title, maxTitleLength); err != nil {
				return outcome{}, err
			}
			idea.Title = title
		}
		if in.Description != nil {
			description := s.sanitizer.Rich(*in.Description)
			if err := limitText("description", description, maxDescriptionLength); err != nil {
				return outcome{}, err
			}
			idea.Description = description
		}
		if in.Status != nil {
			if idea.Status == model.IdeaOpen && *in.Status == model.IdeaClosed {
				changeType = model.ChangeClosedIdea
			}
			idea.Status = *in.Status
		}
		idea.UpdatedAt = s.now().UTC()

		if err := tx.Ideas().Update(ctx, idea); err != nil {
			return outcome{}, fmt.Errorf("アイデアの更新に失敗しました: %w", err)
		}
		updated = idea
		return outcome{
			changeType: changeType,
			update: model.UpdateMessage{
				EntityKind: model.EntityIdea,
				EntityID:   idea.ID,
				Action:     model.ActionUpdated,
				Payload:    idea,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteIdea はアイデアとそのコメント・投票を削除する。作成者またはプロジェクトオーナーのみ実行できる。
func (s *Service) DeleteIdea(ctx context.Context, projectID, ideaID, identity string) error {
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		idea, err := findIdea(ctx, tx, projectID, ideaID)
		if err != nil {
			return outcome{}, err
		}
		if idea.OwnerID != identity && project.OwnerID != identity {
			return outcome{}, model.NewNotAuthorError("アイデア")
		}
		if err := tx.Ideas().Delete(ctx, projectID, ideaID); err != nil {
			return outcome{}, fmt.Errorf("アイデアの削除に失敗しました: %w", err)
		}
		return outcome{
			changeType: model.ChangeDeletedIdea,
			update: model.UpdateMessage{
				EntityKind: model.EntityIdea,
				EntityID:   ideaID,
				Action:     model.ActionDeleted,
				Payload:    idea,
			},
		}, nil
	})
	return err
}

// Vote はアイデアに投票する。upがtrueなら賛成、falseなら反対。
// 同じ利用者の以前の投票は置き換えられる。締め切られたアイデアには投票できない。
func (s *Service) Vote(ctx context.Context, projectID, ideaID, identity string, up bool) (*model.Idea, error) {
	value, changeType := -1, model.ChangeDownvote
	if up {
		value, changeType = 1, model.ChangeUpvote
	}

	var voted *model.Idea
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, _ *model.Project) (outcome, error) {
		idea, err := findIdea(ctx, tx, projectID, ideaID)
		if err != nil {
			return outcome{}, err
		}
		if idea.Status == model.IdeaClosed {
			return outcome{}, model.NewValidationError("idea is closed")
		}
		if err := tx.Ideas().SetVote(ctx, ideaID, identity, value); err != nil {
			return outcome{}, fmt.Errorf("投票に失敗しました: %w", err)
		}

		voted, err = findIdea(ctx, tx, projectID, ideaID)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			changeType: changeType,
			update: model.UpdateMessage{
				EntityKind: model.EntityIdea,
				EntityID:   ideaID,
				Action:     model.ActionUpdated,
				Payload:    voted,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return voted, nil
}

func findIdea(ctx context.Context, repos repository.Repositories, projectID, ideaID string) (*model.Idea, error) {
	idea, err := repos.Ideas().FindByID(ctx, projectID, ideaID)
	if err != nil {
		return nil, fmt.Errorf("アイデアの取得に失敗しました: %w", err)
	}
	if idea == nil {
		return nil, model.NewIdeaNotFoundError(ideaID)
	}
	return idea, nil
}
