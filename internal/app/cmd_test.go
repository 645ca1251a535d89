package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
	"github.com/johndonneUZH/tracko-server-sub001/internal/token"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{})

	for _, name := range []string{"serve", "migrate", "healthcheck", "token"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Errorf("Find(%q) error = %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestNewRootCmd_InMemoryFlag(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{})
	if root.Flags().Lookup("in-memory") == nil {
		t.Error("root command should accept --in-memory")
	}

	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("Find(serve) error = %v", err)
	}
	if serve.Flags().Lookup("in-memory") == nil {
		t.Error("serve command should accept --in-memory")
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("Run(worker) should return an error")
	}
}

func TestRun_Token_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TOKEN_LIFETIME", "1h")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"token", "--user", "user-42"}); err != nil {
		t.Fatalf("Run(token) error = %v", err)
	}

	var issued model.Token
	if err := json.Unmarshal(buf.Bytes(), &issued); err != nil {
		t.Fatalf("output is not a token: %v\nraw: %s", err, buf.String())
	}
	if issued.Subject != "user-42" {
		t.Errorf("Subject = %q, want user-42", issued.Subject)
	}
	if got := issued.ExpiresAt.Sub(issued.IssuedAt); got != time.Hour {
		t.Errorf("lifetime = %v, want 1h", got)
	}

	codec, err := token.NewCodec([]byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	subject, err := codec.Verify(issued.Value)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if subject != "user-42" {
		t.Errorf("verified subject = %q, want user-42", subject)
	}
}

func TestRun_Token_RequiresUser(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"token"}); err == nil {
		t.Fatal("Run(token) without --user should return an error")
	}
}

func TestRun_Migrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err == nil {
		t.Fatal("Run(migrate) without DATABASE_URL should return an error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}

			var buf bytes.Buffer
			err = Run(&buf, []string{"healthcheck", "--port", u.Port()})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
