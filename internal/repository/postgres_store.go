package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// DBTX は*sql.DBと*sql.Txの共通部分。
// リポジトリはどちらに束縛されても同じように動作する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore はPostgreSQLを使用したStore実装。
type PostgresStore struct {
	db *sql.DB
	postgresRepositories
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:                   db,
		postgresRepositories: postgresRepositories{db: db},
	}
}

// WithinTx はfnを単一トランザクション内で実行する。
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(postgresRepositories{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresRepositories struct {
	db DBTX
}

func (r postgresRepositories) Users() UserRepository             { return NewPostgresUserRepo(r.db) }
func (r postgresRepositories) Projects() ProjectRepository       { return NewPostgresProjectRepo(r.db) }
func (r postgresRepositories) Ideas() IdeaRepository             { return NewPostgresIdeaRepo(r.db) }
func (r postgresRepositories) Comments() CommentRepository       { return NewPostgresCommentRepo(r.db) }
func (r postgresRepositories) Messages() MessageRepository       { return NewPostgresMessageRepo(r.db) }
func (r postgresRepositories) Changes() ChangeRepository         { return NewPostgresChangeRepo(r.db) }
func (r postgresRepositories) Friendships() FriendshipRepository { return NewPostgresFriendshipRepo(r.db) }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// nullString は空文字をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
