package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db DBTX
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db DBTX) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `p.id, p.owner_id, p.name, p.description, p.created_at, p.updated_at`

// Create はプロジェクトを作成する。Membersに含まれるユーザーもメンバーとして登録する。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		project.ID, project.OwnerID, project.Name, project.Description, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	for _, memberID := range project.Members {
		if err := r.AddMember(ctx, project.ID, memberID); err != nil {
			return err
		}
	}
	return nil
}

// FindByID は指定IDのプロジェクトをメンバー一覧付きで取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	return r.find(ctx, id, "")
}

// LockByID はプロジェクト行をFOR UPDATEでロックして取得する。
func (r *PostgresProjectRepo) LockByID(ctx context.Context, id string) (*model.Project, error) {
	return r.find(ctx, id, " FOR UPDATE")
}

func (r *PostgresProjectRepo) find(ctx context.Context, id, lock string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`+lock,
		id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}

	members, err := r.loadMembers(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Members = members[p.ID]
	return p, nil
}

// Update はプロジェクトの名前と説明を更新する。
func (r *PostgresProjectRepo) Update(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		project.ID, project.Name, project.Description, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Delete はプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// AddMember はメンバーを追加する。既にメンバーの場合はErrDuplicateを返す。
func (r *PostgresProjectRepo) AddMember(ctx context.Context, projectID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)`,
		projectID, userID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to add project member: %w", err)
	}
	return nil
}

// RemoveMember はメンバーを削除する。
func (r *PostgresProjectRepo) RemoveMember(ctx context.Context, projectID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove project member: %w", err)
	}
	return nil
}

// ListByUser はユーザーがオーナーまたはメンバーであるプロジェクトを作成順に返す。
func (r *PostgresProjectRepo) ListByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+`
		 FROM projects p
		 WHERE p.owner_id = $1
		    OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $1)
		 ORDER BY p.created_at, p.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	var ids []string
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	if len(ids) == 0 {
		return projects, nil
	}

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		p.Members = members[p.ID]
	}
	return projects, nil
}

func (r *PostgresProjectRepo) loadMembers(ctx context.Context, projectIDs []string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id, user_id FROM project_members
		 WHERE project_id = ANY($1)
		 ORDER BY added_at, user_id`,
		pq.Array(projectIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load project members: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]string, len(projectIDs))
	for rows.Next() {
		var projectID, userID string
		if err := rows.Scan(&projectID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}
		members[projectID] = append(members[projectID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate project members: %w", err)
	}
	return members, nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
