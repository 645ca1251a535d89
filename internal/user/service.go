// Package user はユーザー間のフレンド関係を管理するドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/change"
	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/repository"
)

// Notifier は記録済みの変更を相手ユーザーのキューへ通知するインターフェース。
// change.Broadcasterが実装する。
type Notifier interface {
	Announce(event *model.ChangeEvent)
}

// Direction は申請中の関係を呼び出し元から見た向き。
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Friend は呼び出し元から見たフレンド関係の1件。
type Friend struct {
	UserID    string                 `json:"userId"`
	Username  string                 `json:"username"`
	Name      string                 `json:"name"`
	Status    model.FriendshipStatus `json:"status"`
	Direction Direction              `json:"direction,omitempty"`
	Since     time.Time              `json:"since"`
}

// Service はフレンド申請・承認・拒否・解除のサービス層。
// 状態遷移と変更履歴の追記は同一トランザクションで行い、
// コミット後に相手ユーザーへ通知する。
type Service struct {
	store    repository.Store
	recorder *change.Recorder
	notifier Notifier
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Store, recorder *change.Recorder, notifier Notifier) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		notifier: notifier,
		now:      time.Now,
	}
}

// Friends はユーザーの承認済みフレンドと申請中の関係を返す。
func (s *Service) Friends(ctx context.Context, identity string) ([]Friend, error) {
	relations, err := s.store.Friendships().ListByUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("フレンド一覧の取得に失敗しました: %w", err)
	}

	friends := make([]Friend, 0, len(relations))
	for _, rel := range relations {
		other, err := s.store.Users().FindByID(ctx, rel.Other(identity))
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if other == nil {
			// 退会済みユーザーとの関係は表示しない
			continue
		}
		f := Friend{
			UserID:   other.ID,
			Username: other.Username,
			Name:     other.Name,
			Status:   rel.Status,
			Since:    rel.UpdatedAt,
		}
		if rel.Status == model.FriendshipPending {
			f.Direction = DirectionOutgoing
			if rel.AddresseeID == identity {
				f.Direction = DirectionIncoming
			}
		}
		friends = append(friends, f)
	}
	return friends, nil
}

// SendRequest はtargetIDへフレンド申請を送る。
func (s *Service) SendRequest(ctx context.Context, identity, targetID string) error {
	if identity == targetID {
		return model.NewFriendRequestInvalidError("cannot send a friend request to yourself")
	}
	return s.transition(ctx, identity, targetID, model.ChangeSentFriendRequest, func(tx repository.Repositories, now time.Time) error {
		target, err := tx.Users().FindByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if target == nil {
			return model.NewUserNotFoundError()
		}
		existing, err := tx.Friendships().Find(ctx, identity, targetID)
		if err != nil {
			return fmt.Errorf("フレンド関係の取得に失敗しました: %w", err)
		}
		if existing != nil {
			if existing.Status == model.FriendshipAccepted {
				return model.NewFriendRequestInvalidError("already friends")
			}
			return model.NewFriendRequestInvalidError("a friend request is already pending")
		}
		err = tx.Friendships().Create(ctx, &model.Friendship{
			RequesterID: identity,
			AddresseeID: targetID,
			Status:      model.FriendshipPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return model.NewFriendRequestInvalidError("a friend request is already pending")
		}
		return err
	})
}

// Accept はrequesterIDから届いている申請を承認する。
func (s *Service) Accept(ctx context.Context, identity, requesterID string) error {
	return s.transition(ctx, identity, requesterID, model.ChangeAcceptedFriendRequest, func(tx repository.Repositories, now time.Time) error {
		if err := s.requireIncoming(ctx, tx, identity, requesterID); err != nil {
			return err
		}
		return tx.Friendships().Accept(ctx, requesterID, identity, now)
	})
}

// Reject はrequesterIDから届いている申請を拒否する。拒否した申請は削除される。
func (s *Service) Reject(ctx context.Context, identity, requesterID string) error {
	return s.transition(ctx, identity, requesterID, model.ChangeRejectedFriendRequest, func(tx repository.Repositories, _ time.Time) error {
		if err := s.requireIncoming(ctx, tx, identity, requesterID); err != nil {
			return err
		}
		return tx.Friendships().Delete(ctx, requesterID, identity)
	})
}

// Remove は承認済みのフレンド関係を解除する。
func (s *Service) Remove(ctx context.Context, identity, friendID string) error {
	return s.transition(ctx, identity, friendID, model.ChangeRemovedFriend, func(tx repository.Repositories, _ time.Time) error {
		existing, err := tx.Friendships().Find(ctx, identity, friendID)
		if err != nil {
			return fmt.Errorf("フレンド関係の取得に失敗しました: %w", err)
		}
		if existing == nil || existing.Status != model.FriendshipAccepted {
			return model.NewFriendRequestInvalidError("not friends")
		}
		return tx.Friendships().Delete(ctx, identity, friendID)
	})
}

func (s *Service) requireIncoming(ctx context.Context, tx repository.Repositories, identity, requesterID string) error {
	existing, err := tx.Friendships().Find(ctx, identity, requesterID)
	if err != nil {
		return fmt.Errorf("フレンド関係の取得に失敗しました: %w", err)
	}
	if existing == nil || existing.Status != model.FriendshipPending || existing.AddresseeID != identity {
		return model.NewFriendRequestInvalidError("no pending friend request from this user")
	}
	return nil
}

// transition は状態遷移と変更履歴の追記を1トランザクションで実行し、コミット後に通知する。
func (s *Service) transition(
	ctx context.Context,
	identity, otherID string,
	changeType model.ChangeType,
	apply func(tx repository.Repositories, now time.Time) error,
) error {
	var event *model.ChangeEvent
	err := s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := apply(tx, s.now().UTC()); err != nil {
			return err
		}
		recorded, err := s.recorder.RecordUserEvent(ctx, tx.Changes(), identity, otherID, changeType)
		if err != nil {
			return fmt.Errorf("変更履歴の記録に失敗しました: %w", err)
		}
		event = recorded
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("フレンド関係を更新しました",
		slog.String("user_id", identity),
		slog.String("other_user_id", otherID),
		slog.String("change_type", string(changeType)),
	)
	s.notifier.Announce(event)
	return nil
}
