package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// PostgresChangeRepo はPostgreSQLを使用した変更履歴リポジトリ。
// changesテーブルはトリガーによりUPDATEとDELETEが禁止されている。
type PostgresChangeRepo struct {
	db DBTX
}

// NewPostgresChangeRepo はPostgresChangeRepoを生成する。
func NewPostgresChangeRepo(db DBTX) *PostgresChangeRepo {
	return &PostgresChangeRepo{db: db}
}

// Append は変更履歴を追記する。
func (r *PostgresChangeRepo) Append(ctx context.Context, e *model.ChangeEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO changes (id, project_id, actor_id, target_user_id, change_type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, nullString(e.ProjectID), e.ActorID, nullString(e.TargetUserID),
		string(e.Type), e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

// ListByProject はプロジェクトの変更履歴をsince以降について新しい順に返す。
func (r *PostgresChangeRepo) ListByProject(ctx context.Context, projectID string, since time.Time) ([]*model.ChangeEvent, error) {
	return r.list(ctx, `project_id = $1`, projectID, since)
}

// ListByActor はユーザーが行った変更履歴をsince以降について新しい順に返す。
func (r *PostgresChangeRepo) ListByActor(ctx context.Context, actorID string, since time.Time) ([]*model.ChangeEvent, error) {
	return r.list(ctx, `actor_id = $1`, actorID, since)
}

func (r *PostgresChangeRepo) list(ctx context.Context, where string, arg string, since time.Time) ([]*model.ChangeEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, actor_id, target_user_id, change_type, description, created_at
		 FROM changes
		 WHERE `+where+` AND created_at >= $2
		 ORDER BY created_at DESC, id DESC`,
		arg, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var events []*model.ChangeEvent
	for rows.Next() {
		e := &model.ChangeEvent{}
		var projectID, targetUserID sql.NullString
		var changeType string
		if err := rows.Scan(&e.ID, &projectID, &e.ActorID, &targetUserID, &changeType, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		e.ProjectID = projectID.String
		e.TargetUserID = targetUserID.String
		e.Type = model.ChangeType(changeType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return events, nil
}

// compile-time interface check
var _ ChangeRepository = (*PostgresChangeRepo)(nil)
