// Package guard はプロジェクト単位のメンバーシップ認可を提供する。
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// ProjectFinder はプロジェクト取得に必要なインターフェース。
// repository.ProjectRepositoryの部分集合として定義する。
type ProjectFinder interface {
	FindByID(ctx context.Context, id string) (*model.Project, error)
}

// DenialRecorder は認可拒否を記録するメトリクスのインターフェース。
type DenialRecorder interface {
	RecordAccessDenied(kind string)
}

// Guard はプロジェクトへのアクセス可否を判定する。
// 判定結果はキャッシュせず、呼び出しごとに最新のメンバーシップを参照する。
type Guard struct {
	projects ProjectFinder
	denials  DenialRecorder
}

// New はGuardを生成する。denialsはnilでもよい。
func New(projects ProjectFinder, denials DenialRecorder) *Guard {
	return &Guard{projects: projects, denials: denials}
}

// Authorize は利用者がプロジェクトのオーナーまたはメンバーであればプロジェクトを返す。
// プロジェクトが存在しない場合はAccessNotFound、メンバーでない場合はAccessForbiddenの
// *model.AccessErrorを返す。それ以外のエラーはストア障害として返す。
func (g *Guard) Authorize(ctx context.Context, projectID, identity string) (*model.Project, error) {
	project, err := g.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project for authorization: %w", err)
	}

	if err := Check(project, projectID, identity); err != nil {
		g.reject(err.(*model.AccessError))
		return nil, err
	}
	return project, nil
}

// Check はロード済みのプロジェクトに対してメンバーシップを判定する。
// トランザクション内で再取得したプロジェクトの再検証に使用する。
// projectがnilの場合はAccessNotFoundを返す。
func Check(project *model.Project, projectID, identity string) error {
	if project == nil {
		return &model.AccessError{Kind: model.AccessNotFound, ProjectID: projectID, UserID: identity}
	}
	if !project.HasMember(identity) {
		return &model.AccessError{Kind: model.AccessForbidden, ProjectID: projectID, UserID: identity}
	}
	return nil
}

func (g *Guard) reject(err *model.AccessError) {
	slog.Warn("project access denied",
		slog.String("kind", string(err.Kind)),
		slog.String("project_id", err.ProjectID),
		slog.String("user_id", err.UserID),
	)
	if g.denials != nil {
		g.denials.RecordAccessDenied(string(err.Kind))
	}
}
