package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// PostgresFriendshipRepo はPostgreSQLを使用したフレンド関係リポジトリ。
type PostgresFriendshipRepo struct {
	db DBTX
}

// NewPostgresFriendshipRepo はPostgresFriendshipRepoを生成する。
func NewPostgresFriendshipRepo(db DBTX) *PostgresFriendshipRepo {
	return &PostgresFriendshipRepo{db: db}
}

const friendshipColumns = `requester_id, addressee_id, status, created_at, updated_at`

func scanFriendship(row interface{ Scan(...any) error }) (*model.Friendship, error) {
	f := &model.Friendship{}
	var status string
	if err := row.Scan(&f.RequesterID, &f.AddresseeID, &status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Status = model.FriendshipStatus(status)
	return f, nil
}

// Find は2ユーザー間の関係を方向を問わず取得する。見つからない場合はnilを返す。
func (r *PostgresFriendshipRepo) Find(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	f, err := scanFriendship(r.db.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE (requester_id = $1 AND addressee_id = $2)
		    OR (requester_id = $2 AND addressee_id = $1)`,
		userA, userB,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find friendship: %w", err)
	}
	return f, nil
}

// Create はフレンド申請を作成する。
func (r *PostgresFriendshipRepo) Create(ctx context.Context, f *model.Friendship) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO friendships (`+friendshipColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		f.RequesterID, f.AddresseeID, string(f.Status), f.CreatedAt, f.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert friendship: %w", err)
	}
	return nil
}

// Accept は申請を承認済みに更新する。
func (r *PostgresFriendshipRepo) Accept(ctx context.Context, requesterID, addresseeID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE friendships SET status = $3, updated_at = $4
		 WHERE requester_id = $1 AND addressee_id = $2`,
		requesterID, addresseeID, string(model.FriendshipAccepted), at,
	)
	if err != nil {
		return fmt.Errorf("failed to accept friendship: %w", err)
	}
	return nil
}

// Delete は2ユーザー間の関係を方向を問わず削除する。
func (r *PostgresFriendshipRepo) Delete(ctx context.Context, userA, userB string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM friendships
		 WHERE (requester_id = $1 AND addressee_id = $2)
		    OR (requester_id = $2 AND addressee_id = $1)`,
		userA, userB,
	)
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	return nil
}

// ListByUser はユーザーが当事者である関係をすべて返す。
func (r *PostgresFriendshipRepo) ListByUser(ctx context.Context, userID string) ([]*model.Friendship, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE requester_id = $1 OR addressee_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	defer rows.Close()

	var result []*model.Friendship
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friendships: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ FriendshipRepository = (*PostgresFriendshipRepo)(nil)
