package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *engine.Engine, *gin.Engine) {
	t.Helper()
	eng := engine.New(engine.Config{RetentionBound: 100})
	t.Cleanup(eng.Close)

	srv := NewServer("", eng)
	return srv, eng, srv.router()
}

func seed(eng *engine.Engine) {
	eng.Ingest([]model.Entry{
		{Timestamp: time.UnixMilli(1000), Level: model.LevelInfo, Source: "api", Message: "started"},
		{Timestamp: time.UnixMilli(2000), Level: model.LevelError, Source: "api", Message: "boom", Tags: []string{"oncall"}},
		{Timestamp: time.UnixMilli(3000), Level: model.LevelWarn, Source: "worker", Message: "slow"},
	})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEntries(t *testing.T, w *httptest.ResponseRecorder) []model.Entry {
	t.Helper()
	var body struct {
		Entries []model.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal entries: %v (%s)", err, w.Body.String())
	}
	return body.Entries
}

func TestNewServer_DefaultAddress(t *testing.T) {
	srv := NewServer("", engine.New())
	if srv.Addr() != DefaultAddr {
		t.Fatalf("Addr() = %q, want %q", srv.Addr(), DefaultAddr)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	w := do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" || body["entries"] != float64(3) || body["session"] != eng.Session() {
		t.Errorf("health body = %v", body)
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/health", "")
	// Gin returns 405 for method not allowed when a route exists but not for this method
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestEntriesEndpoint(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	if got := decodeEntries(t, do(r, http.MethodGet, "/api/entries", "")); len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}

	got := decodeEntries(t, do(r, http.MethodGet, "/api/entries?limit=2", ""))
	if len(got) != 2 || got[0].Message != "boom" || got[1].Message != "slow" {
		t.Fatalf("limited entries = %+v", got)
	}

	eng.SetFilter(filter.Spec{Levels: []model.Level{model.LevelWarn, model.LevelError}}.Compile())
	if got := decodeEntries(t, do(r, http.MethodGet, "/api/entries", "")); len(got) != 2 {
		t.Fatalf("entries under active filter = %d, want 2", len(got))
	}
}

func TestEntriesEndpoint_BadLimit(t *testing.T) {
	_, _, r := newTestServer(t)

	for _, q := range []string{"limit=abc", "limit=-1"} {
		if w := do(r, http.MethodGet, "/api/entries?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestQueryEndpoint(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	w := do(r, http.MethodPost, "/api/entries/query", `{"filter":{"tags":["oncall"]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d: %s", w.Code, w.Body.String())
	}
	got := decodeEntries(t, w)
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("query entries = %+v", got)
	}
	if !eng.Filter().IsIdentity() {
		t.Fatal("ad-hoc query must not change the active filter")
	}
}

func TestQueryEndpoint_InvalidBody(t *testing.T) {
	_, _, r := newTestServer(t)

	for _, body := range []string{`not json`, `{"filter":{"levels":["LOUD"]}}`, `{"limit":-5}`} {
		if w := do(r, http.MethodPost, "/api/entries/query", body); w.Code != http.StatusBadRequest {
			t.Errorf("query %s status = %d, want 400", body, w.Code)
		}
	}
}

func TestFilterEndpoints(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	w := do(r, http.MethodPut, "/api/filter", `{"levels":["err"],"search":"BOO"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT filter status = %d: %s", w.Code, w.Body.String())
	}
	if got := eng.Tail(eng.Filter(), 0); len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("active filter matches %+v", got)
	}

	w = do(r, http.MethodGet, "/api/filter", "")
	var spec filter.Spec
	if err := json.Unmarshal(w.Body.Bytes(), &spec); err != nil {
		t.Fatalf("unmarshal filter: %v", err)
	}
	if len(spec.Levels) != 1 || spec.Levels[0] != model.LevelError {
		t.Fatalf("GET filter = %+v", spec)
	}

	// an empty spec restores the identity filter
	do(r, http.MethodPut, "/api/filter", `{}`)
	if !eng.Filter().IsIdentity() {
		t.Fatal("empty spec did not restore identity")
	}
}

func TestMetadataAndClear(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	w := do(r, http.MethodGet, "/api/metadata", "")
	var meta model.Metadata
	if err := json.Unmarshal(w.Body.Bytes(), &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if len(meta.Sources) != 2 || len(meta.Tags) != 1 || meta.Tags[0] != "oncall" {
		t.Fatalf("metadata = %+v", meta)
	}

	if w := do(r, http.MethodPost, "/api/clear", ""); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if eng.Len() != 0 || !eng.Metadata().Empty() {
		t.Fatal("clear left entries or metadata behind")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, eng, r := newTestServer(t)
	seed(eng)

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "logdeck_buffer_entries") {
		t.Fatal("metrics output missing logdeck collectors")
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal stream message: %v", err)
	}
	return msg
}

func TestStream(t *testing.T) {
	srv, eng, r := newTestServer(t)
	ts := httptest.NewServer(r)
	defer ts.Close()
	defer srv.Stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	if hello := readMessage(t, conn); hello.Type != MessageMetadata || hello.Metadata == nil {
		t.Fatalf("first frame = %+v, want metadata", hello)
	}

	eng.SetFilter(filter.Spec{Levels: []model.Level{model.LevelError}}.Compile())
	seed(eng)

	entries := readMessage(t, conn)
	if entries.Type != MessageEntries || len(entries.Entries) != 1 || entries.Entries[0].Message != "boom" {
		t.Fatalf("entries frame = %+v, want the error entry only", entries)
	}
	meta := readMessage(t, conn)
	if meta.Type != MessageMetadata || len(meta.Metadata.Sources) != 2 {
		t.Fatalf("metadata frame = %+v", meta)
	}

	eng.Clear()
	if cleared := readMessage(t, conn); cleared.Type != MessageCleared {
		t.Fatalf("frame after clear = %+v, want cleared", cleared)
	}
}

// lateBackend ingests right after a stream registers, before the handler
// returns to its pumps.
type lateBackend struct {
	*engine.Engine
}

func (b lateBackend) SubscribeWithMetadata(o engine.Observer) *engine.Subscription {
	sub := b.Engine.SubscribeWithMetadata(o)
	b.Ingest([]model.Entry{{Timestamp: time.UnixMilli(1000), Level: model.LevelInfo, Source: "late", Message: "hi"}})
	return sub
}

func TestStreamSnapshotPrecedesLiveFrames(t *testing.T) {
	eng := engine.New(engine.Config{RetentionBound: 100})
	t.Cleanup(eng.Close)
	srv := NewServer("", lateBackend{eng})
	ts := httptest.NewServer(srv.router())
	defer ts.Close()
	defer srv.Stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	var types []string
	var last *model.Metadata
	for range 3 {
		msg := readMessage(t, conn)
		types = append(types, msg.Type)
		if msg.Type == MessageMetadata {
			last = msg.Metadata
		}
	}
	if strings.Join(types, ",") != "metadata,entries,metadata" {
		t.Fatalf("frames = %v, want metadata,entries,metadata", types)
	}
	if last == nil || len(last.Sources) != 1 || last.Sources[0] != "late" {
		t.Fatalf("last metadata = %+v, want sources [late]", last)
	}
}

func TestStopClosesStreams(t *testing.T) {
	srv, eng, r := newTestServer(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for eng.Stats().Subscribers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream subscription outlived Stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
