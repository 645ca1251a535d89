// Package change は変更履歴の記録とリアルタイム配信を提供する。
//
// 記録はミューテーションと同じトランザクション内で行い、
// 配信はコミット後にベストエフォートで行う。配信の失敗は記録を取り消さない。
package change

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// Appender は変更履歴の追記に必要なインターフェース。
// repository.ChangeRepositoryが実装する。トランザクション内のリポジトリを渡す。
type Appender interface {
	Append(ctx context.Context, event *model.ChangeEvent) error
}

// Metrics は変更履歴と配信のメトリクス記録インターフェース。
type Metrics interface {
	RecordChange(changeType string)
	RecordBroadcastFailure(kind string)
}

type nopMetrics struct{}

func (nopMetrics) RecordChange(string)           {}
func (nopMetrics) RecordBroadcastFailure(string) {}

// Recorder は受理された変更をChangeEventとして追記する。
type Recorder struct {
	now     func() time.Time
	newID   func() string
	metrics Metrics
}

// RecorderOption はRecorderの生成オプション。
type RecorderOption func(*Recorder)

// WithRecorderClock は記録時刻の取得関数を差し替える。
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator はイベントIDの生成関数を差し替える。
func WithIDGenerator(newID func() string) RecorderOption {
	return func(r *Recorder) { r.newID = newID }
}

// NewRecorder はRecorderを生成する。metricsはnilでもよい。
func NewRecorder(metrics Metrics, opts ...RecorderOption) *Recorder {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	r := &Recorder{
		now:     time.Now,
		newID:   uuid.NewString,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record はプロジェクト単位の変更を追記し、保存したイベントを返す。
// 説明文は種別から決まり、呼び出し側が指定することはできない。
func (r *Recorder) Record(ctx context.Context, appender Appender, projectID, actorID string, changeType model.ChangeType) (*model.ChangeEvent, error) {
	if changeType.UserScoped() {
		return nil, fmt.Errorf("change type %s is not project scoped", changeType)
	}
	if projectID == "" {
		return nil, fmt.Errorf("project id is required for %s", changeType)
	}
	return r.append(ctx, appender, &model.ChangeEvent{
		ProjectID: projectID,
		ActorID:   actorID,
		Type:      changeType,
	})
}

// RecordUserEvent はフレンド関係などユーザー間の変更を追記する。
func (r *Recorder) RecordUserEvent(ctx context.Context, appender Appender, actorID, targetUserID string, changeType model.ChangeType) (*model.ChangeEvent, error) {
	if !changeType.UserScoped() {
		return nil, fmt.Errorf("change type %s is not user scoped", changeType)
	}
	if targetUserID == "" {
		return nil, fmt.Errorf("target user id is required for %s", changeType)
	}
	return r.append(ctx, appender, &model.ChangeEvent{
		ActorID:      actorID,
		TargetUserID: targetUserID,
		Type:         changeType,
	})
}

func (r *Recorder) append(ctx context.Context, appender Appender, event *model.ChangeEvent) (*model.ChangeEvent, error) {
	if !event.Type.Valid() {
		return nil, fmt.Errorf("unknown change type: %q", event.Type)
	}
	if event.ActorID == "" {
		return nil, fmt.Errorf("actor id is required for %s", event.Type)
	}

	event.ID = r.newID()
	event.Description = event.Type.Description()
	event.CreatedAt = r.now().UTC()

	if err := appender.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", event.Type, err)
	}
	r.metrics.RecordChange(string(event.Type))
	return event, nil
}
