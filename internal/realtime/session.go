package realtime

import (
	"sync"
)

// deliveryResult は送信キューへの投入結果を表す。
type deliveryResult int

const (
	delivered deliveryResult = iota
	droppedFull
	droppedClosed
)

// Session は1本のWebSocket接続に対応する購読者を表す。
// 送信はキューを介して書き込みゴルーチンに渡され、キューが満杯の場合は破棄される。
type Session struct {
	id  string
	out chan []byte

	mu       sync.RWMutex
	identity string

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession はキュー長queueSizeのSessionを生成する。
func NewSession(id string, queueSize int) *Session {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Session{
		id:   id,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// ID はセッションIDを返す。
func (s *Session) ID() string {
	return s.id
}

// Identity は認証済みの利用者IDを返す。未認証の場合は空文字。
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) setIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// Outbound は送信待ちフレームのチャネルを返す。
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Done はセッション終了時にクローズされるチャネルを返す。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed はセッションが終了済みかどうかを返す。
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close はセッションを終了する。複数回呼び出しても安全。
// outチャネルは閉じないため、終了後の投入はパニックせず破棄される。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// offer は配信用フレームをブロックせずにキューへ投入する。
func (s *Session) offer(b []byte) deliveryResult {
	if s.Closed() {
		return droppedClosed
	}
	select {
	case s.out <- b:
		return delivered
	default:
		return droppedFull
	}
}

// sendControl はCONNECTEDやRECEIPTなどの制御フレームを投入する。
// キューに空きが出るかセッションが終了するまで待つ。
func (s *Session) sendControl(b []byte) bool {
	if s.Closed() {
		return false
	}
	select {
	case s.out <- b:
		return true
	case <-s.done:
		return false
	}
}
