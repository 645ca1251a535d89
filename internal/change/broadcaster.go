package change

import (
	"encoding/json"
	"log/slog"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/realtime"
)

// Publisher はトピックへの配信に必要なインターフェース。realtime.Brokerが実装する。
type Publisher interface {
	Publish(topic string, body []byte) (int, error)
	SendToUser(identity string, body []byte) (int, error)
}

// Broadcaster はコミット済みの変更を購読者に配信する。
// 配信は最大1回で、失敗はログとメトリクスに残すのみで呼び出し元には返さない。
type Broadcaster struct {
	publisher Publisher
	metrics   Metrics
}

// NewBroadcaster はBroadcasterを生成する。metricsはnilでもよい。
func NewBroadcaster(publisher Publisher, metrics Metrics) *Broadcaster {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Broadcaster{publisher: publisher, metrics: metrics}
}

// Broadcast は更新メッセージを /topic/project/{projectId} に配信する。
func (b *Broadcaster) Broadcast(update model.UpdateMessage) {
	b.send("update", update.ProjectID, realtime.ProjectTopic(update.ProjectID), update)
}

// Announce は記録済みのイベントを配信する。
// プロジェクト単位のイベントは /topic/project/{projectId}/changes に、
// ユーザー間のイベントは対象ユーザーの通知キューに送る。
func (b *Broadcaster) Announce(event *model.ChangeEvent) {
	if event == nil {
		return
	}
	if event.Type.UserScoped() {
		body, err := json.Marshal(event)
		if err != nil {
			b.fail("notification", event.TargetUserID, err)
			return
		}
		if _, err := b.publisher.SendToUser(event.TargetUserID, body); err != nil {
			b.fail("notification", event.TargetUserID, err)
		}
		return
	}
	b.send("change", event.ProjectID, realtime.ProjectChangesTopic(event.ProjectID), event)
}

func (b *Broadcaster) send(kind, projectID, topic string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		b.fail(kind, projectID, err)
		return
	}
	delivered, err := b.publisher.Publish(topic, body)
	if err != nil {
		b.fail(kind, projectID, err)
		return
	}
	slog.Debug("broadcast published",
		slog.String("kind", kind),
		slog.String("topic", topic),
		slog.Int("delivered", delivered),
	)
}

func (b *Broadcaster) fail(kind, target string, err error) {
	b.metrics.RecordBroadcastFailure(kind)
	slog.Error("broadcast failed",
		slog.String("kind", kind),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)
}
