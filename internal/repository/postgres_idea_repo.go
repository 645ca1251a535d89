package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// PostgresIdeaRepo はPostgreSQLを使用したアイデアリポジトリ。
type PostgresIdeaRepo struct {
	db DBTX
}

// NewPostgresIdeaRepo はPostgresIdeaRepoを生成する。
func NewPostgresIdeaRepo(db DBTX) *PostgresIdeaRepo {
	return &PostgresIdeaRepo{db: db}
}

const ideaColumns = `id, project_id, owner_id, title, description, status, created_at, updated_at`

func scanIdea(row interface{ Scan(...any) error }) (*model.Idea, error) {
	idea := &model.Idea{}
	var status string
	err := row.Scan(&idea.ID, &idea.ProjectID, &idea.OwnerID, &idea.Title, &idea.Description,
		&status, &idea.CreatedAt, &idea.UpdatedAt)
	if err != nil {
		return nil, err
	}
	idea.Status = model.IdeaStatus(status)
	return idea, nil
}

// Create はアイデアを作成する。
func (r *PostgresIdeaRepo) Create(ctx context.Context, idea *model.Idea) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ideas (`+ideaColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		idea.ID, idea.ProjectID, idea.OwnerID, idea.Title, idea.Description,
		string(idea.Status), idea.CreatedAt, idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert idea: %w", err)
	}
	return nil
}

// FindByID はプロジェクト内の指定IDのアイデアを投票付きで取得する。見つからない場合はnilを返す。
func (r *PostgresIdeaRepo) FindByID(ctx context.Context, projectID, ideaID string) (*model.Idea, error) {
	idea, err := scanIdea(r.db.QueryRowContext(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE project_id = $1 AND id = $2`,
		projectID, ideaID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find idea: %w", err)
	}

	if err := r.attachVotes(ctx, `WHERE v.idea_id = $1`, ideaID, map[string]*model.Idea{idea.ID: idea}); err != nil {
		return nil, err
	}
	return idea, nil
}

// Update はアイデアのタイトル・説明・状態を更新する。
func (r *PostgresIdeaRepo) Update(ctx context.Context, idea *model.Idea) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ideas SET title = $3, description = $4, status = $5, updated_at = $6
		 WHERE project_id = $1 AND id = $2`,
		idea.ProjectID, idea.ID, idea.Title, idea.Description, string(idea.Status), idea.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update idea: %w", err)
	}
	return nil
}

// Delete はアイデアを削除する。投票とコメントはCASCADE削除される。
func (r *PostgresIdeaRepo) Delete(ctx context.Context, projectID, ideaID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ideas WHERE project_id = $1 AND id = $2`,
		projectID, ideaID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete idea: %w", err)
	}
	return nil
}

// ListByProject はプロジェクトのアイデアを作成順に返す。
func (r *PostgresIdeaRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Idea, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE project_id = $1 ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []*model.Idea
	byID := make(map[string]*model.Idea)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		ideas = append(ideas, idea)
		byID[idea.ID] = idea
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ideas: %w", err)
	}
	if len(ideas) == 0 {
		return ideas, nil
	}

	if err := r.attachVotes(ctx,
		`JOIN ideas i ON i.id = v.idea_id WHERE i.project_id = $1`, projectID, byID); err != nil {
		return nil, err
	}
	return ideas, nil
}

// SetVote はユーザーの投票を設定する。既存の投票は上書きされる。
func (r *PostgresIdeaRepo) SetVote(ctx context.Context, ideaID, userID string, value int) error {
	if value != 1 && value != -1 {
		return fmt.Errorf("invalid vote value: %d", value)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idea_votes (idea_id, user_id, value) VALUES ($1, $2, $3)
		 ON CONFLICT (idea_id, user_id) DO UPDATE SET value = EXCLUDED.value`,
		ideaID, userID, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set vote: %w", err)
	}
	return nil
}

func (r *PostgresIdeaRepo) attachVotes(ctx context.Context, clause string, arg any, ideas map[string]*model.Idea) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT v.idea_id, v.user_id, v.value FROM idea_votes v `+clause+` ORDER BY v.user_id`,
		arg,
	)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ideaID, userID string
		var value int
		if err := rows.Scan(&ideaID, &userID, &value); err != nil {
			return fmt.Errorf("failed to scan vote: %w", err)
		}
		idea, ok := ideas[ideaID]
		if !ok {
			continue
		}
		if value > 0 {
			idea.Upvotes = append(idea.Upvotes, userID)
		} else {
			idea.Downvotes = append(idea.Downvotes, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate votes: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdeaRepository = (*PostgresIdeaRepo)(nil)
