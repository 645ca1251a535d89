package realtime

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// STOMPコマンド
const (
	cmdConnect     = "CONNECT"
	cmdStomp       = "STOMP"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdDisconnect  = "DISCONNECT"
	cmdSend        = "SEND"
	cmdMessage     = "MESSAGE"
	cmdReceipt     = "RECEIPT"
	cmdError       = "ERROR"
)

// STOMPヘッダー
const (
	hdrAuthorization = "Authorization"
	hdrContentLength = "content-length"
	hdrContentType   = "content-type"
	hdrDestination   = "destination"
	hdrHeartBeat     = "heart-beat"
	hdrID            = "id"
	hdrMessage       = "message"
	hdrMessageID     = "message-id"
	hdrReceipt       = "receipt"
	hdrReceiptID     = "receipt-id"
	hdrServer        = "server"
	hdrSession       = "session"
	hdrSubscription  = "subscription"
	hdrUserName      = "user-name"
	hdrVersion       = "version"
)

const (
	stompVersion  = "1.2"
	serverName    = "tracko/1.0"
	jsonMediaType = "application/json"
)

// encodeFrame はフレームを1つのWebSocketメッセージ分のバイト列に変換する。
func encodeFrame(f *frame.Frame) ([]byte, error) {
	if len(f.Body) > 0 {
		f.Header.Set(hdrContentLength, strconv.Itoa(len(f.Body)))
	}
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

func messageFrame(destination, subscriptionID, messageID string, body []byte) *frame.Frame {
	f := frame.New(cmdMessage,
		hdrDestination, destination,
		hdrSubscription, subscriptionID,
		hdrMessageID, messageID,
		hdrContentType, jsonMediaType,
	)
	f.Body = body
	return f
}

func errorFrame(message, receiptID string) *frame.Frame {
	f := frame.New(cmdError, hdrMessage, message, hdrContentType, "text/plain")
	if receiptID != "" {
		f.Header.Set(hdrReceiptID, receiptID)
	}
	f.Body = []byte(message)
	return f
}

func receiptFrame(receiptID string) *frame.Frame {
	return frame.New(cmdReceipt, hdrReceiptID, receiptID)
}

// heartBeat はSTOMPのheart-beatヘッダー値を表す。
// outgoingは送信側が保証する最小間隔、incomingは送信側が期待する最小間隔。
type heartBeat struct {
	outgoing time.Duration
	incoming time.Duration
}

// parseHeartBeat は"cx,cy"形式のヘッダー値を解析する。空の場合は0,0として扱う。
func parseHeartBeat(value string) (heartBeat, error) {
	if value == "" {
		return heartBeat{}, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return heartBeat{}, fmt.Errorf("invalid heart-beat header: %q", value)
	}
	cx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || cx < 0 {
		return heartBeat{}, fmt.Errorf("invalid heart-beat header: %q", value)
	}
	cy, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || cy < 0 {
		return heartBeat{}, fmt.Errorf("invalid heart-beat header: %q", value)
	}
	return heartBeat{
		outgoing: time.Duration(cx) * time.Millisecond,
		incoming: time.Duration(cy) * time.Millisecond,
	}, nil
}

func (h heartBeat) String() string {
	return strconv.FormatInt(h.outgoing.Milliseconds(), 10) + "," + strconv.FormatInt(h.incoming.Milliseconds(), 10)
}

// negotiate はクライアントの申告とサーバーの設定から実際の間隔を決める。
// send はサーバーが送信する間隔、receive はクライアントからの受信を期待する間隔。
// どちらかが0ならその方向のハートビートは無効。
func negotiate(client heartBeat, server time.Duration) (send, receive time.Duration) {
	if client.incoming > 0 && server > 0 {
		send = max(client.incoming, server)
	}
	if client.outgoing > 0 && server > 0 {
		receive = max(client.outgoing, server)
	}
	return send, receive
}
