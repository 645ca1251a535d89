package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// ProjectInput はプロジェクト作成の入力。
type ProjectInput struct {
	Name        string
	Description string
	Members     []string
}

// ProjectUpdate はプロジェクト設定変更の入力。nilのフィールドは変更しない。
type ProjectUpdate struct {
	Name        *string
	Description *string
}

// MemberPayload はメンバー追加・削除の配信内容。
type MemberPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// CreateProject はidentityをオーナーとするプロジェクトを作成する。
// Membersに指定した利用者は初期メンバーとして追加される。
func (s *Service) CreateProject(ctx context.Context, identity string, in ProjectInput) (*model.Project, error) {
	name := s.sanitizer.Plain(in.Name)
	if err := requireText("name", name, maxNameLength); err != nil {
		return nil, err
	}
	description := s.sanitizer.Rich(in.Description)
	if err := limitText("description", description, maxDescriptionLength); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	project := &model.Project{
		ID:          s.newID(),
		OwnerID:     identity,
		Name:        name,
		Description: description,
		Members:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var event *model.ChangeEvent
	err := s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Projects().Create(ctx, project); err != nil {
			return fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
		}

		for _, memberID := range in.Members {
			if memberID == identity || slices.Contains(project.Members, memberID) {
				continue
			}
			user, err := tx.Users().FindByID(ctx, memberID)
			if err != nil {
				return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
			}
			if user == nil {
				return model.NewUserNotFoundError()
			}
			if err := tx.Projects().AddMember(ctx, project.ID, memberID); err != nil {
				return fmt.Errorf("メンバーの追加に失敗しました: %w", err)
			}
			project.Members = append(project.Members, memberID)
		}

		var err error
		event, err = s.recorder.Record(ctx, tx.Changes(), project.ID, identity, model.ChangeAddedProject)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(model.UpdateMessage{
		EntityKind: model.EntityProject,
		EntityID:   project.ID,
		ProjectID:  project.ID,
		Action:     model.ActionCreated,
		Payload:    project,
	})
	s.notifier.Announce(event)
	return project, nil
}

// GetProject はメンバーに対してプロジェクトを返す。
func (s *Service) GetProject(ctx context.Context, projectID, identity string) (*model.Project, error) {
	return s.authz.Authorize(ctx, projectID, identity)
}

// ListProjects は利用者がオーナーまたはメンバーであるプロジェクトを返す。
func (s *Service) ListProjects(ctx context.Context, identity string) ([]*model.Project, error) {
	projects, err := s.store.Projects().ListByUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	return projects, nil
}

// ListMembers はオーナーを先頭にしたメンバーのユーザー情報を返す。
// 削除済みのユーザーは含めない。
func (s *Service) ListMembers(ctx context.Context, projectID, identity string) ([]*model.User, error) {
	project, err := s.authz.Authorize(ctx, projectID, identity)
	if err != nil {
		return nil, err
	}

	ids := append([]string{project.OwnerID}, project.Members...)
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.store.Users().FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user != nil {
			users = append(users, user)
		}
	}
	return users, nil
}

// UpdateProject はプロジェクトの名前と説明を変更する。オーナーのみ実行できる。
func (s *Service) UpdateProject(ctx context.Context, projectID, identity string, in ProjectUpdate) (*model.Project, error) {
	var updated *model.Project
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		if project.OwnerID != identity {
			return outcome{}, model.NewOwnerOnlyError("update project settings")
		}
		if in.Name == nil && in.Description == nil {
			return outcome{}, model.NewValidationError("nothing to update")
		}
		if in.Name != nil {
			name := s.sanitizer.Plain(*in.Name)
			if err := requireText("name", name, maxNameLength); err != nil {
				return outcome{}, err
			}
			project.Name = name
		}
		if in.Description != nil {
			description := s.sanitizer.Rich(*in.Description)
			if err := limitText("description", description, maxDescriptionLength); err != nil {
				return outcome{}, err
			}
			project.Description = description
		}
		project.UpdatedAt = s.now().UTC()

		if err := tx.Projects().Update(ctx, project); err != nil {
			return outcome{}, fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
		}
		updated = project
		return outcome{
			changeType: model.ChangeChangedProjectSettings,
			update: model.UpdateMessage{
				EntityKind: model.EntityProject,
				EntityID:   project.ID,
				Action:     model.ActionUpdated,
				Payload:    project,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject はプロジェクトを削除する。オーナーのみ実行できる。
// 変更履歴は残り、全メンバーのプロジェクト購読は解除される。
func (s *Service) DeleteProject(ctx context.Context, projectID, identity string) error {
	var participants []string
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		if project.OwnerID != identity {
			return outcome{}, model.NewOwnerOnlyError("delete project")
		}
		if err := tx.Projects().Delete(ctx, project.ID); err != nil {
			return outcome{}, fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
		}
		participants = append([]string{project.OwnerID}, project.Members...)
		return outcome{
			changeType: model.ChangeDeletedProject,
			update: model.UpdateMessage{
				EntityKind: model.EntityProject,
				EntityID:   project.ID,
				Action:     model.ActionDeleted,
				Payload:    project,
			},
		}, nil
	})
	if err != nil {
		return err
	}

	for _, userID := range participants {
		s.evictor.Evict(userID, projectID)
	}
	return nil
}

// AddMember は利用者をメンバーに追加する。オーナーのみ実行できる。
func (s *Service) AddMember(ctx context.Context, projectID, identity, userID string) (*MemberPayload, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId is required")
	}

	var payload *MemberPayload
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		if project.OwnerID != identity {
			return outcome{}, model.NewOwnerOnlyError("add member")
		}
		if project.HasMember(userID) {
			return outcome{}, model.NewAlreadyMemberError()
		}

		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			return outcome{}, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return outcome{}, model.NewUserNotFoundError()
		}

		if err := tx.Projects().AddMember(ctx, project.ID, userID); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return outcome{}, model.NewAlreadyMemberError()
			}
			return outcome{}, fmt.Errorf("メンバーの追加に失敗しました: %w", err)
		}

		payload = &MemberPayload{UserID: user.ID, Username: user.Username}
		return outcome{
			changeType: model.ChangeAddedMember,
			update: model.UpdateMessage{
				EntityKind: model.EntityMember,
				EntityID:   user.ID,
				Action:     model.ActionCreated,
				Payload:    payload,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// RemoveMember はメンバーを外す。オーナーは任意のメンバーを、メンバーは自分自身を外せる。
// 自分自身の場合はLEFT_PROJECTとして記録する。オーナーはプロジェクトを離脱できない。
// 配信の後、外れた利用者のプロジェクト購読を解除する。
func (s *Service) RemoveMember(ctx context.Context, projectID, identity, userID string) error {
	_, err := s.mutate(ctx, projectID, identity, func(tx repository.Repositories, project *model.Project) (outcome, error) {
		if userID == project.OwnerID {
			return outcome{}, model.NewValidationError("the owner cannot leave the project")
		}

		changeType := model.ChangeRemovedMember
		switch {
		case userID == identity:
			changeType = model.ChangeLeftProject
		case project.OwnerID != identity:
			return outcome{}, model.NewOwnerOnlyError("remove member")
		}

		if !slices.Contains(project.Members, userID) {
			return outcome{}, model.NewUserNotFoundError()
		}
		if err := tx.Projects().RemoveMember(ctx, project.ID, userID); err != nil {
			return outcome{}, fmt.Errorf("メンバーの削除に失敗しました: %w", err)
		}

		return outcome{
			changeType: changeType,
			update: model.UpdateMessage{
				EntityKind: model.EntityMember,
				EntityID:   userID,
				Action:     model.ActionDeleted,
				Payload:    &MemberPayload{UserID: userID},
			},
		}, nil
	})
	if err != nil {
		return err
	}

	s.evictor.Evict(userID, projectID)
	return nil
}
