package realtime

import (
	"testing"
	"time"
)

func TestParseHeartBeat(t *testing.T) {
	tests := []struct {
		value   string
		want    heartBeat
		wantErr bool
	}{
		{"", heartBeat{}, false},
		{"0,0", heartBeat{}, false},
		{"10000,5000", heartBeat{outgoing: 10 * time.Second, incoming: 5 * time.Second}, false},
		{"10", heartBeat{}, true},
		{"a,b", heartBeat{}, true},
		{"-1,0", heartBeat{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseHeartBeat(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeartBeat(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseHeartBeat(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name        string
		client      heartBeat
		server      time.Duration
		wantSend    time.Duration
		wantReceive time.Duration
	}{
		{"client disabled", heartBeat{}, 10 * time.Second, 0, 0},
		{"server disabled", heartBeat{outgoing: time.Second, incoming: time.Second}, 0, 0, 0},
		{"server slower", heartBeat{outgoing: time.Second, incoming: time.Second}, 10 * time.Second, 10 * time.Second, 10 * time.Second},
		{"client slower", heartBeat{outgoing: 20 * time.Second, incoming: 30 * time.Second}, 10 * time.Second, 30 * time.Second, 20 * time.Second},
		{"receive only", heartBeat{outgoing: 5 * time.Second}, 10 * time.Second, 0, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send, receive := negotiate(tt.client, tt.server)
			if send != tt.wantSend || receive != tt.wantReceive {
				t.Errorf("negotiate() = %v, %v, want %v, %v", send, receive, tt.wantSend, tt.wantReceive)
			}
		})
	}
}

func TestEncodeFrame_SetsContentLength(t *testing.T) {
	b, err := encodeFrame(messageFrame("/topic/project/p", "sub-0", "m-1", []byte(`{"a":1}`)))
	if err != nil {
		t.Fatalf("encodeFrame() error = %v", err)
	}
	f := decodeFrame(t, b)
	if got := f.Header.Get(hdrContentLength); got != "7" {
		t.Errorf("content-length = %q, want %q", got, "7")
	}
	if got := f.Header.Get(hdrContentType); got != jsonMediaType {
		t.Errorf("content-type = %q, want %q", got, jsonMediaType)
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		dest      string
		wantKind  destinationKind
		wantID    string
		wantTopic string
		wantErr   bool
	}{
		{dest: "/topic/project/proj-1", wantKind: destProject, wantID: "proj-1", wantTopic: "/topic/project/proj-1"},
		{dest: "/topic/project/proj-1/changes", wantKind: destProjectChanges, wantID: "proj-1", wantTopic: "/topic/project/proj-1/changes"},
		{dest: "/user/queue/notifications", wantKind: destUserQueue, wantTopic: "/user/user-2/queue/notifications"},
		{dest: "/topic/project/", wantErr: true},
		{dest: "/topic/project/a/b", wantErr: true},
		{dest: "/topic/other/proj-1", wantErr: true},
		{dest: "/user/user-3/queue/notifications", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			d, err := parseDestination(tt.dest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDestination(%q) error = %v, wantErr %v", tt.dest, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if d.kind != tt.wantKind || d.projectID != tt.wantID {
				t.Errorf("parseDestination(%q) = %+v", tt.dest, d)
			}
			if got := d.topic("user-2"); got != tt.wantTopic {
				t.Errorf("topic = %q, want %q", got, tt.wantTopic)
			}
		})
	}
}
