package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/johndonneUZH/tracko-server-sub001/internal/auth"
	"github.com/johndonneUZH/tracko-server-sub001/internal/middleware"
	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// Gatekeeper は接続の認証に必要なインターフェース。auth.Gatekeeperが実装する。
type Gatekeeper interface {
	Admit(authorization, path string) auth.Admission
	Authenticate(authorization string) (string, error)
}

// Authorizer はプロジェクト購読の認可に必要なインターフェース。guard.Guardが実装する。
type Authorizer interface {
	Authorize(ctx context.Context, projectID, identity string) (*model.Project, error)
}

// Config はWebSocketサーバーの設定。
type Config struct {
	AllowedOrigins    []string      // 許可するOrigin。"*"はすべて許可
	HeartbeatInterval time.Duration // サーバー側のハートビート間隔。0で無効
	OutboundQueueSize int           // 接続ごとの送信キュー長
	ConnectTimeout    time.Duration // CONNECTフレームを待つ時間
	WriteTimeout      time.Duration // 1フレームの書き込みタイムアウト
	MaxFrameBytes     int           // 受信フレームの最大サイズ
	FrameRate         rate.Limit    // 接続ごとの受信フレームレート（毎秒）
	FrameBurst        int
}

// DefaultConfig は既定の設定を返す。
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{"http://localhost:3000"},
		HeartbeatInterval: 10 * time.Second,
		OutboundQueueSize: 64,
		ConnectTimeout:    10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxFrameBytes:     64 << 10,
		FrameRate:         40,
		FrameBurst:        80,
	}
}

// Server はSTOMP over WebSocketのエンドポイントを提供する。
type Server struct {
	broker  *Broker
	gate    Gatekeeper
	authz   Authorizer
	metrics Metrics
	cfg     Config
}

// NewServer はServerを生成する。metricsはnilでもよい。
func NewServer(broker *Broker, gate Gatekeeper, authz Authorizer, metrics Metrics, cfg Config) *Server {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Server{broker: broker, gate: gate, authz: authz, metrics: metrics, cfg: cfg}
}

// ServeHTTP はハンドシェイクを検証してWebSocketに昇格する。
// ハンドシェイクにAuthorizationヘッダーがあれば昇格前に検証し、無効なら401を返す。
// ヘッダーがなければ接続はPENDINGのまま昇格し、CONNECTフレームでの認証を待つ。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	admission := s.gate.Admit(r.Header.Get("Authorization"), r.URL.Path)
	if admission.State == auth.StateRejected {
		s.metrics.RecordHandshakeRejected(string(admission.Err.Kind))
		slog.Warn("websocket handshake rejected",
			slog.String("kind", string(admission.Err.Kind)),
			slog.String("remote_addr", r.RemoteAddr),
		)
		middleware.WriteUnauthorized(w, admission.Err)
		return
	}

	ctx := r.Context()
	if admission.State == auth.StateAuthenticated {
		ctx = middleware.ContextWithUserID(ctx, admission.Identity)
	}
	ws := websocket.Server{
		Handshake: s.handshake,
		Handler:   s.serveConn,
	}
	ws.ServeHTTP(w, r.WithContext(ctx))
}

// handshake はOriginを検証し、STOMPのサブプロトコルを選択する。
// Originヘッダーのない非ブラウザクライアントは許可する。
func (s *Server) handshake(cfg *websocket.Config, r *http.Request) error {
	if origin := r.Header.Get("Origin"); origin != "" && !s.originAllowed(origin) {
		s.metrics.RecordHandshakeRejected("origin")
		slog.Warn("websocket origin rejected", slog.String("origin", origin))
		return errors.New("origin not allowed")
	}

	var selected []string
	for _, p := range []string{"v12.stomp", "v11.stomp", "v10.stomp"} {
		if slices.Contains(cfg.Protocol, p) {
			selected = []string{p}
			break
		}
	}
	cfg.Protocol = selected
	return nil
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) serveConn(ws *websocket.Conn) {
	ws.PayloadType = websocket.TextFrame
	if s.cfg.MaxFrameBytes > 0 {
		ws.MaxPayloadBytes = s.cfg.MaxFrameBytes
	}

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	// 昇格前に認証済みでなければ空文字のまま
	handshakeIdentity, _ := middleware.UserIDFromContext(ctx)
	c := &connection{
		server:            s,
		ws:                ws,
		reader:            frame.NewReader(ws),
		session:           NewSession(uuid.NewString(), s.cfg.OutboundQueueSize),
		state:             auth.StatePending,
		handshakeIdentity: handshakeIdentity,
		limiter:           rate.NewLimiter(s.cfg.FrameRate, s.cfg.FrameBurst),
		writerDone:        make(chan struct{}),
	}

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	c.run(ctx)
}

// connection は1本のWebSocket接続の状態を保持する。
// 受信はrunのゴルーチン、CONNECT後の送信はwriteLoopのゴルーチンが担当する。
type connection struct {
	server            *Server
	ws                *websocket.Conn
	reader            *frame.Reader
	session           *Session
	state             auth.State
	handshakeIdentity string
	limiter           *rate.Limiter

	sendInterval    time.Duration
	receiveInterval time.Duration
	writerStarted   bool
	writerDone      chan struct{}
}

func (c *connection) run(ctx context.Context) {
	defer c.cleanup()

	for {
		c.setReadDeadline()
		f, err := c.reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.session.Closed() {
				slog.Debug("websocket read ended",
					slog.String("session_id", c.session.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if f == nil {
			// ハートビート
			continue
		}
		if !c.limiter.Allow() {
			c.fail("frame rate exceeded", "")
			return
		}
		if !c.handle(ctx, f) {
			return
		}
	}
}

func (c *connection) setReadDeadline() {
	switch {
	case c.state == auth.StatePending && c.server.cfg.ConnectTimeout > 0:
		_ = c.ws.SetReadDeadline(time.Now().Add(c.server.cfg.ConnectTimeout))
	case c.receiveInterval > 0:
		_ = c.ws.SetReadDeadline(time.Now().Add(3 * c.receiveInterval))
	default:
		_ = c.ws.SetReadDeadline(time.Time{})
	}
}

// handle はフレームを処理し、接続を継続する場合はtrueを返す。
func (c *connection) handle(ctx context.Context, f *frame.Frame) bool {
	if c.state == auth.StatePending {
		if f.Command != cmdConnect && f.Command != cmdStomp {
			c.fail("not connected: send CONNECT first", f.Header.Get(hdrReceipt))
			return false
		}
		return c.connect(f)
	}

	switch f.Command {
	case cmdSubscribe:
		return c.subscribe(ctx, f)
	case cmdUnsubscribe:
		return c.unsubscribe(f)
	case cmdDisconnect:
		c.disconnect(f)
		return false
	case cmdConnect, cmdStomp:
		c.fail("already connected", f.Header.Get(hdrReceipt))
		return false
	default:
		c.fail("unsupported command: "+f.Command, f.Header.Get(hdrReceipt))
		return false
	}
}

// connect はCONNECTフレームを認証し、AUTHENTICATEDに遷移する。
// フレームにAuthorizationヘッダーがあればそれを検証し、なければハンドシェイク時の認証結果を使う。
func (c *connection) connect(f *frame.Frame) bool {
	header := f.Header.Get(hdrAuthorization)
	if header == "" {
		header = f.Header.Get("authorization")
	}

	identity := c.handshakeIdentity
	if header != "" || identity == "" {
		var err error
		identity, err = c.server.gate.Authenticate(header)
		if err != nil {
			c.reject(err)
			return false
		}
	}

	client, err := parseHeartBeat(f.Header.Get(hdrHeartBeat))
	if err != nil {
		c.fail(err.Error(), "")
		return false
	}
	c.sendInterval, c.receiveInterval = negotiate(client, c.server.cfg.HeartbeatInterval)

	if err := c.server.broker.Attach(c.session); err != nil {
		c.fail("server is shutting down", "")
		return false
	}
	c.session.setIdentity(identity)
	c.state = auth.StateAuthenticated

	connected := frame.New(cmdConnected,
		hdrVersion, stompVersion,
		hdrHeartBeat, heartBeat{outgoing: c.sendInterval, incoming: c.receiveInterval}.String(),
		hdrServer, serverName,
		hdrSession, c.session.ID(),
		hdrUserName, identity,
	)
	encoded, err := encodeFrame(connected)
	if err != nil {
		slog.Error("failed to encode CONNECTED frame", slog.String("error", err.Error()))
		return false
	}

	c.writerStarted = true
	go c.writeLoop()
	if !c.session.sendControl(encoded) {
		return false
	}

	slog.Info("websocket connected",
		slog.String("session_id", c.session.ID()),
		slog.String("user_id", identity),
	)
	return true
}

// reject は認証失敗時にセッション状態を破棄してからERRORフレームを返す。
func (c *connection) reject(err error) {
	c.state = auth.StateRejected
	c.session.setIdentity("")
	c.server.broker.RemoveSession(c.session)

	kind, ok := model.AuthErrorKindOf(err)
	if !ok {
		kind = model.AuthMalformed
	}
	c.server.metrics.RecordHandshakeRejected(string(kind))
	slog.Warn("websocket CONNECT rejected",
		slog.String("session_id", c.session.ID()),
		slog.String("kind", string(kind)),
	)
	c.fail("authentication failed: "+string(kind), "")
}

func (c *connection) subscribe(ctx context.Context, f *frame.Frame) bool {
	dest := f.Header.Get(hdrDestination)
	subscriptionID := f.Header.Get(hdrID)
	receipt := f.Header.Get(hdrReceipt)
	if dest == "" || subscriptionID == "" {
		c.fail("SUBSCRIBE requires destination and id headers", receipt)
		return false
	}

	d, err := parseDestination(dest)
	if err != nil {
		c.fail(err.Error(), receipt)
		return false
	}

	identity := c.session.Identity()
	if d.kind != destUserQueue {
		if _, err := c.server.authz.Authorize(ctx, d.projectID, identity); err != nil {
			var accessErr *model.AccessError
			if errors.As(err, &accessErr) {
				c.fail("access denied: "+dest, receipt)
			} else {
				slog.Error("failed to authorize subscription",
					slog.String("session_id", c.session.ID()),
					slog.String("destination", dest),
					slog.String("error", err.Error()),
				)
				c.fail("subscription temporarily unavailable", receipt)
			}
			return false
		}
	}

	// 認可の待ち時間中に接続が閉じた場合は結果を捨てる
	if c.session.Closed() {
		return false
	}

	if err := c.server.broker.Subscribe(c.session, subscriptionID, dest, d.topic(identity)); err != nil {
		c.fail("subscribe failed: "+err.Error(), receipt)
		return false
	}

	slog.Info("websocket subscribed",
		slog.String("session_id", c.session.ID()),
		slog.String("user_id", identity),
		slog.String("destination", dest),
	)
	return c.sendReceipt(receipt)
}

func (c *connection) unsubscribe(f *frame.Frame) bool {
	subscriptionID := f.Header.Get(hdrID)
	receipt := f.Header.Get(hdrReceipt)
	if subscriptionID == "" {
		c.fail("UNSUBSCRIBE requires id header", receipt)
		return false
	}
	c.server.broker.Unsubscribe(c.session, subscriptionID)
	return c.sendReceipt(receipt)
}

func (c *connection) disconnect(f *frame.Frame) {
	c.sendReceipt(f.Header.Get(hdrReceipt))
	c.server.broker.RemoveSession(c.session)
	c.session.Close()
}

func (c *connection) sendReceipt(receiptID string) bool {
	if receiptID == "" {
		return true
	}
	encoded, err := encodeFrame(receiptFrame(receiptID))
	if err != nil {
		return false
	}
	return c.session.sendControl(encoded)
}

// fail はERRORフレームを送信して接続を終了する。
func (c *connection) fail(message, receiptID string) {
	encoded, err := encodeFrame(errorFrame(message, receiptID))
	if err != nil {
		c.session.Close()
		return
	}

	if c.writerStarted {
		c.session.sendControl(encoded)
		c.session.Close()
		return
	}
	// 書き込みゴルーチン起動前は受信ゴルーチンから直接書き込む
	c.session.Close()
	c.write(encoded)
}

func (c *connection) write(b []byte) error {
	if c.server.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	}
	_, err := c.ws.Write(b)
	return err
}

// writeLoop は送信キューを順にWebSocketへ書き込み、送信がない間はハートビートを送る。
// 終了時は接続を閉じ、受信側のReadを解除する。
func (c *connection) writeLoop() {
	defer close(c.writerDone)
	defer c.ws.Close()

	var tick <-chan time.Time
	if c.sendInterval > 0 {
		ticker := time.NewTicker(c.sendInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	lastWrite := time.Now()

	for {
		select {
		case b := <-c.session.Outbound():
			if err := c.write(b); err != nil {
				c.session.Close()
				return
			}
			lastWrite = time.Now()
		case now := <-tick:
			if now.Sub(lastWrite) < c.sendInterval {
				continue
			}
			if err := c.write([]byte("\n")); err != nil {
				c.session.Close()
				return
			}
			lastWrite = now
		case <-c.session.Done():
			c.drain()
			return
		}
	}
}

// drain は終了時点でキューに残っているフレームを書き込む。
func (c *connection) drain() {
	for {
		select {
		case b := <-c.session.Outbound():
			if err := c.write(b); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *connection) cleanup() {
	c.server.broker.RemoveSession(c.session)
	c.session.Close()
	if c.writerStarted {
		<-c.writerDone
	}
	if identity := c.session.Identity(); identity != "" {
		slog.Info("websocket disconnected",
			slog.String("session_id", c.session.ID()),
			slog.String("user_id", identity),
		)
	}
}
