package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/config"
	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/security"
	"github.com/flemzord/seline/modules/channel/line"
)

const testSecret = "line-channel-secret"

// lineReply is the part of a reply request body the tests look at.
type lineReply struct {
	ReplyToken string `json:"replyToken"`
	Messages   []struct {
		Text       string `json:"text"`
		QuickReply *struct {
			Items []json.RawMessage `json:"items"`
		} `json:"quickReply"`
	} `json:"messages"`
}

// fakeUpstream stands in for the LINE, OpenAI and search APIs.
type fakeUpstream struct {
	mu      sync.Mutex
	replies []lineReply
	got     chan struct{}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v2/bot/message/reply":
		var req lineReply
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.replies = append(f.replies, req)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"sentMessages":[]}`)
		select {
		case f.got <- struct{}{}:
		default:
		}
	case "/v2/bot/chat/loading/start":
		_, _ = io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"unavailable"}}`)
	}
}

func (f *fakeUpstream) replyRequests() []lineReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lineReply(nil), f.replies...)
}

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
gateway:
  bind: 127.0.0.1:0
debounce:
  window: 50ms
line:
  channel_secret: %[2]s
  access_token: line-access-token
  api_url: %[1]s
openai:
  api_key: sk-test
  model: gpt-4o-mini
  base_url: %[1]s
search:
  endpoint: %[1]s
  api_key: search-key
  product_index: products
  service_index: services
storage:
  driver: memory
`, upstream, testSecret)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestBuild_FAQEndToEnd(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{got: make(chan struct{}, 1)}
	srv := httptest.NewServer(up)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	logger := testLogger()
	svc, err := Build(context.Background(), cfg, logger, "test")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := svc.App.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = svc.App.Stop() }()

	body := []byte(`{"destination":"bot","events":[{"type":"message","mode":"active","replyToken":"rt-1",` +
		`"source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"ศูนย์ดูแลลูกค้า"}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set(line.SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	svc.Gateway.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case <-up.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply delivered")
	}

	replies := up.replyRequests()
	if len(replies) != 1 || replies[0].ReplyToken != "rt-1" {
		t.Fatalf("replies = %+v", replies)
	}
	msg := replies[0].Messages[0]
	if !strings.Contains(msg.Text, "02-255-5656") {
		t.Errorf("reply text = %q", msg.Text)
	}
	if msg.QuickReply == nil || len(msg.QuickReply.Items) != 4 {
		t.Errorf("quick reply = %+v", msg.QuickReply)
	}

	// The FAQ exchange is persisted as two turns.
	deadline := time.Now().Add(5 * time.Second)
	for {
		turns, _ := svc.Store.Recent(context.Background(), "U1", 10)
		if len(turns) == 2 {
			if turns[0].Sender != conversation.SenderUser || turns[1].Sender != conversation.SenderAssistant {
				t.Errorf("turns = %+v", turns)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("persisted %d turns, want 2", len(turns))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuild_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakeUpstream{got: make(chan struct{}, 1)})
	defer srv.Close()

	svc, err := Build(context.Background(), testConfig(t, srv.URL), testLogger(), "test")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = svc.App.Discard() }()

	body := []byte(`{"events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set(line.SignatureHeader, "bm90LWEtc2lnbmF0dXJl")
	rec := httptest.NewRecorder()
	svc.Gateway.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if svc.Router.Pending() != 0 {
		t.Error("unsigned webhook reached the router")
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.LINE.ChannelSecret = "super-secret-value"
	cfg.OpenAI.APIKey = "openai-key-value"

	var buf bytes.Buffer
	logger, _, err := NewLogger(config.LogConfig{Level: "info", Format: "json"}, &buf, NewRedactor(cfg))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("calling upstream", "key", "openai-key-value", "detail", "secret=super-secret-value")

	out := buf.String()
	if strings.Contains(out, "super-secret-value") || strings.Contains(out, "openai-key-value") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, security.RedactPlaceholder) {
		t.Errorf("placeholder missing: %s", out)
	}

	if _, _, err := NewLogger(config.LogConfig{Level: "info", Format: "xml"}, &buf, NewRedactor(cfg)); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := testLogger()

	mem, err := OpenStore(ctx, config.StorageConfig{Driver: config.DriverMemory}, logger)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*conversation.MemoryStore); !ok {
		t.Errorf("memory driver returned %T", mem)
	}

	var sc config.StorageConfig
	sc.Driver = config.DriverSQLite
	sc.SQLite.Path = t.TempDir() + "/seline.db"
	s, err := OpenStore(ctx, sc, logger)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	} else {
		t.Error("sqlite store should be closable")
	}

	if _, err := OpenStore(ctx, config.StorageConfig{Driver: "mongo"}, logger); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestLiveSettings_ChangesLevelAndLearnsSecrets(t *testing.T) {
	t.Parallel()

	current := &config.Config{}
	current.Log.Level = "info"

	redactor := NewRedactor(current)
	var buf bytes.Buffer
	logger, level, err := NewLogger(current.Log, &buf, redactor)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	apply := liveSettings(current, level, redactor, logger)

	next := &config.Config{}
	next.Log.Level = "debug"
	next.Search.APIKey = "rotated-search-key"
	if err := apply(context.Background(), next); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}

	logger.Debug("probe", "key", "rotated-search-key")
	out := buf.String()
	if strings.Contains(out, "rotated-search-key") {
		t.Errorf("rotated secret leaked: %s", out)
	}
	if !strings.Contains(out, "require a restart") {
		t.Errorf("restart warning missing: %s", out)
	}

	bad := &config.Config{}
	bad.Log.Level = "loud"
	if err := apply(context.Background(), bad); err == nil {
		t.Error("invalid level should fail")
	}
}
