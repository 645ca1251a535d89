// Package realtime はSTOMP over WebSocketによるリアルタイム配信を提供する。
package realtime

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrBrokerClosed はブローカー停止後の操作を表す。
	ErrBrokerClosed = errors.New("broker is closed")
	// ErrSessionClosed は終了済みセッションへの購読登録を表す。
	ErrSessionClosed = errors.New("session is closed")
	// ErrDuplicateSubscription は同一セッション内での購読IDの重複を表す。
	ErrDuplicateSubscription = errors.New("subscription id already in use")
)

// Metrics はリアルタイム配信のメトリクス記録インターフェース。
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RecordHandshakeRejected(reason string)
	RecordPublish(delivered, dropped int)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()              {}
func (nopMetrics) ConnectionClosed()              {}
func (nopMetrics) RecordHandshakeRejected(string) {}
func (nopMetrics) RecordPublish(int, int)         {}

type subscriber struct {
	session     *Session
	id          string
	destination string
}

// Broker はトピックごとの購読テーブルを保持し、メッセージを購読者に配信する。
// プロセス起動時に生成され、停止時にCloseされる。
// 配信は最大1回であり、再送や履歴の再生は行わない。
type Broker struct {
	mu       sync.RWMutex
	topics   map[string]map[subscriber]struct{}
	sessions map[*Session]map[string]string // session -> subscription id -> topic
	live     map[*Session]struct{}
	closed   bool

	// publishMu はすべての配信と購読解除を直列化する。
	// 購読者ごとの配信順序は発行順に揃い、解除の完了後に解除済みの購読者へ届く配信はない。
	// ロック順序は publishMu → mu。
	publishMu sync.Mutex

	metrics      Metrics
	newMessageID func() string
}

// NewBroker は新しいBrokerを生成する。metricsはnilでもよい。
func NewBroker(metrics Metrics) *Broker {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Broker{
		topics:       make(map[string]map[subscriber]struct{}),
		sessions:     make(map[*Session]map[string]string),
		live:         make(map[*Session]struct{}),
		metrics:      metrics,
		newMessageID: uuid.NewString,
	}
}

// Attach は接続済みセッションを登録する。Close時に終了させる対象になる。
func (b *Broker) Attach(s *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.live[s] = struct{}{}
	return nil
}

// Subscribe はセッションをトピックに登録する。
// destinationはMESSAGEフレームのdestinationヘッダーに使われるクライアント側の宛先。
func (b *Broker) Subscribe(s *Session, subscriptionID, destination, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if s.Closed() {
		return ErrSessionClosed
	}

	subs := b.sessions[s]
	if subs == nil {
		subs = make(map[string]string)
		b.sessions[s] = subs
	}
	if _, exists := subs[subscriptionID]; exists {
		return ErrDuplicateSubscription
	}
	subs[subscriptionID] = topic

	members := b.topics[topic]
	if members == nil {
		members = make(map[subscriber]struct{})
		b.topics[topic] = members
	}
	members[subscriber{session: s, id: subscriptionID, destination: destination}] = struct{}{}
	return nil
}

// Unsubscribe はセッションの購読を解除する。存在しない購読IDは無視する。
func (b *Broker) Unsubscribe(s *Session, subscriptionID string) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(s, subscriptionID)
}

func (b *Broker) unsubscribeLocked(s *Session, subscriptionID string) {
	subs := b.sessions[s]
	topic, ok := subs[subscriptionID]
	if !ok {
		return
	}
	delete(subs, subscriptionID)
	if len(subs) == 0 {
		delete(b.sessions, s)
	}

	members := b.topics[topic]
	for sub := range members {
		if sub.session == s && sub.id == subscriptionID {
			delete(members, sub)
		}
	}
	if len(members) == 0 {
		delete(b.topics, topic)
	}
}

// RemoveSession はセッションのすべての購読を解除し、登録を取り消す。
func (b *Broker) RemoveSession(s *Session) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, s)
	for subscriptionID := range b.sessions[s] {
		b.unsubscribeLocked(s, subscriptionID)
	}
}

// Evict は利用者のプロジェクト関連の購読をすべて解除し、解除件数を返す。
// メンバーから外れた利用者への配信を止めるために使用する。
// 実行中の配信が終わるまで待つため、戻った時点以降の配信は解除済みの購読に届かない。
func (b *Broker) Evict(identity, projectID string) int {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := ProjectTopic(projectID)
	evicted := 0
	for s, subs := range b.sessions {
		if s.Identity() != identity {
			continue
		}
		for subscriptionID, topic := range subs {
			if topic == prefix || strings.HasPrefix(topic, prefix+"/") {
				b.unsubscribeLocked(s, subscriptionID)
				evicted++
			}
		}
	}
	return evicted
}

// Publish はトピックの全購読者にbodyを配信し、キューに投入できた件数を返す。
// 購読者のキューが満杯の場合、その購読者への配信は破棄される。
// 終了済みセッションへの配信は何もしない。
func (b *Broker) Publish(topic string, body []byte) (int, error) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, ErrBrokerClosed
	}
	targets := make([]subscriber, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	deliveredCount, dropped := 0, 0
	for _, sub := range targets {
		encoded, err := encodeFrame(messageFrame(sub.destination, sub.id, b.newMessageID(), body))
		if err != nil {
			return deliveredCount, err
		}
		switch sub.session.offer(encoded) {
		case delivered:
			deliveredCount++
		case droppedFull:
			dropped++
			slog.Warn("outbound queue full, message dropped",
				slog.String("session_id", sub.session.ID()),
				slog.String("user_id", sub.session.Identity()),
				slog.String("topic", topic),
			)
		}
	}
	b.metrics.RecordPublish(deliveredCount, dropped)
	return deliveredCount, nil
}

// SendToUser は利用者の通知キューを購読している全セッションにbodyを配信する。
func (b *Broker) SendToUser(identity string, body []byte) (int, error) {
	return b.Publish(UserTopic(identity), body)
}

// SubscriberCount はトピックの購読数を返す。
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close はブローカーを停止し、全セッションを終了する。以降の配信はErrBrokerClosedになる。
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.live {
		s.Close()
	}
	for s := range b.sessions {
		s.Close()
	}
	b.live = make(map[*Session]struct{})
	b.topics = make(map[string]map[subscriber]struct{})
	b.sessions = make(map[*Session]map[string]string)
}
