package change

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

const (
	// DefaultDailyDays は日別集計の既定の対象日数。
	DefaultDailyDays = 30
	// DefaultContributionDays は種別集計の既定の対象日数。
	DefaultContributionDays = 90
	// MaxDays は集計対象日数の上限。
	MaxDays = 365
)

// Lister は変更履歴の読み取りに必要なインターフェース。
type Lister interface {
	ListByProject(ctx context.Context, projectID string, since time.Time) ([]*model.ChangeEvent, error)
	ListByActor(ctx context.Context, actorID string, since time.Time) ([]*model.ChangeEvent, error)
}

// Authorizer はプロジェクト履歴の閲覧前の認可に必要なインターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, projectID, identity string) (*model.Project, error)
}

// DailyCount は1日あたりの変更件数。
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Contribution は1日あたりの種別ごとの変更件数。
// Settingsは設定変更・退出・メンバー追加・メンバー削除の合計。
type Contribution struct {
	Date          string `json:"date"`
	AddIdea       int    `json:"addIdea"`
	EditIdea      int    `json:"editIdea"`
	CloseIdea     int    `json:"closeIdea"`
	DeleteIdea    int    `json:"deleteIdea"`
	AddComment    int    `json:"addComment"`
	DeleteComment int    `json:"deleteComment"`
	Upvote        int    `json:"upvote"`
	Downvote      int    `json:"downvote"`
	Settings      int    `json:"settings"`
}

// Query は変更履歴の閲覧と集計を提供する。
type Query struct {
	changes Lister
	authz   Authorizer
	now     func() time.Time
}

// NewQuery はQueryを生成する。
func NewQuery(changes Lister, authz Authorizer) *Query {
	return &Query{changes: changes, authz: authz, now: time.Now}
}

// ProjectLog はプロジェクトの変更履歴を新しい順に返す。
func (q *Query) ProjectLog(ctx context.Context, projectID, identity string) ([]*model.ChangeEvent, error) {
	if _, err := q.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	events, err := q.changes.ListByProject(ctx, projectID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list project changes: %w", err)
	}
	return events, nil
}

// ActorLog は利用者自身が行った変更を新しい順に返す。
func (q *Query) ActorLog(ctx context.Context, identity string) ([]*model.ChangeEvent, error) {
	events, err := q.changes.ListByActor(ctx, identity, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list actor changes: %w", err)
	}
	return events, nil
}

// Daily は直近days日間の日別変更件数を日付の昇順で返す。変更のない日は含まない。
func (q *Query) Daily(ctx context.Context, projectID, identity string, days int) ([]DailyCount, error) {
	events, err := q.recent(ctx, projectID, identity, clampDays(days, DefaultDailyDays))
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range events {
		counts[dayKey(e.CreatedAt)]++
	}
	result := make([]DailyCount, 0, len(counts))
	for date, n := range counts {
		result = append(result, DailyCount{Date: date, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// Contributions は直近days日間の種別ごとの日別件数を日付の昇順で返す。
// userIDを指定した場合はその利用者の変更のみを集計する。
func (q *Query) Contributions(ctx context.Context, projectID, identity, userID string, days int) ([]Contribution, error) {
	events, err := q.recent(ctx, projectID, identity, clampDays(days, DefaultContributionDays))
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*Contribution)
	for _, e := range events {
		if userID != "" && e.ActorID != userID {
			continue
		}
		key := dayKey(e.CreatedAt)
		c := byDate[key]
		if c == nil {
			c = &Contribution{Date: key}
			byDate[key] = c
		}
		c.add(e.Type)
	}

	result := make([]Contribution, 0, len(byDate))
	for _, c := range byDate {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (c *Contribution) add(t model.ChangeType) {
	switch t {
	case model.ChangeAddedIdea:
		c.AddIdea++
	case model.ChangeModifiedIdea:
		c.EditIdea++
	case model.ChangeClosedIdea:
		c.CloseIdea++
	case model.ChangeDeletedIdea:
		c.DeleteIdea++
	case model.ChangeAddedComment:
		c.AddComment++
	case model.ChangeDeletedComment:
		c.DeleteComment++
	case model.ChangeUpvote:
		c.Upvote++
	case model.ChangeDownvote:
		c.Downvote++
	case model.ChangeChangedProjectSettings, model.ChangeLeftProject,
		model.ChangeAddedMember, model.ChangeRemovedMember:
		c.Settings++
	}
}

// recent は認可の後、直近days日間（当日を含む）のプロジェクト変更を返す。
func (q *Query) recent(ctx context.Context, projectID, identity string, days int) ([]*model.ChangeEvent, error) {
	if _, err := q.authz.Authorize(ctx, projectID, identity); err != nil {
		return nil, err
	}
	today := q.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	events, err := q.changes.ListByProject(ctx, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list project changes: %w", err)
	}
	return events, nil
}

func clampDays(days, fallback int) int {
	switch {
	case days <= 0:
		return fallback
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
