package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codetape/codetape/internal/playback"
	"github.com/codetape/codetape/internal/reconstruct"
	"github.com/codetape/codetape/internal/recorder"
	"github.com/codetape/codetape/internal/replayservice"
	"github.com/codetape/codetape/internal/testutil"
	"github.com/codetape/codetape/internal/timeline"
)

type env struct {
	store  *timeline.Store
	rec    *recorder.Recorder
	svc    *replayservice.Service
	router http.Handler
}

// testEnv wires a temp store, recorder, playback manager, and router.
// authToken == "" runs disabled auth mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()

	store := testutil.TestStore(t, timeline.Options{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := reconstruct.New(store, nil)
	playbacks := playback.NewManager(store, playback.Options{Quantum: 5 * time.Millisecond}, nil)
	t.Cleanup(playbacks.StopAll)
	rec := recorder.New(store, recorder.Policy{}, 0, logger, nil, nil)

	svc := replayservice.New(store, engine, playbacks, rec, nil)
	router := NewRouter(svc, authToken != "", authToken, nil, nil)
	return &env{store: store, rec: rec, svc: svc, router: router}
}

// openSessionEnv is testEnv with a session already recording.
func openSessionEnv(t *testing.T) *env {
	t.Helper()
	e := testEnv(t, "")
	if _, err := e.store.BeginSession(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	e := testEnv(t, "")

	// No session yet.
	if w := e.do(t, http.MethodGet, "/session", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /session = %d, want 404", w.Code)
	}

	w := e.do(t, http.MethodPost, "/session", map[string]string{"root": "/tmp/work"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /session = %d, body = %s", w.Code, w.Body.String())
	}
	var sess map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	if sess["id"] == "" || sess["root"] != "/tmp/work" {
		t.Errorf("session = %+v", sess)
	}

	// Second start conflicts.
	if w := e.do(t, http.MethodPost, "/session", map[string]string{"root": "/x"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate start = %d, want 409", w.Code)
	}

	if w := e.do(t, http.MethodGet, "/session", nil); w.Code != http.StatusOK {
		t.Errorf("GET /session = %d", w.Code)
	}

	if w := e.do(t, http.MethodDelete, "/session", nil); w.Code != http.StatusOK {
		t.Errorf("DELETE /session = %d", w.Code)
	}
	// Double stop conflicts.
	if w := e.do(t, http.MethodDelete, "/session", nil); w.Code != http.StatusConflict {
		t.Errorf("double stop = %d, want 409", w.Code)
	}
}

func TestPurgeSessionEndpoint(t *testing.T) {
	e := openSessionEnv(t)
	sess, err := e.store.CurrentSession()
	if err != nil {
		t.Fatal(err)
	}

	// Purging the open session conflicts.
	if w := e.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil); w.Code != http.StatusConflict {
		t.Errorf("purge open = %d, want 409", w.Code)
	}

	e.do(t, http.MethodDelete, "/session", nil)
	if w := e.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("purge closed = %d, want 204", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/sessions/no-such-id", nil); w.Code != http.StatusNotFound {
		t.Errorf("purge unknown = %d, want 404", w.Code)
	}
}

func TestTerminalAndEventsEndpoints(t *testing.T) {
	e := openSessionEnv(t)

	w := e.do(t, http.MethodPost, "/terminal", map[string]any{
		"terminal_id": "term-1", "command": "go build", "output": "ok", "ts": 1000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /terminal = %d, body = %s", w.Code, w.Body.String())
	}
	// Missing fields reject.
	if w := e.do(t, http.MethodPost, "/terminal", map[string]any{"command": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("terminal without id = %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /events = %d", w.Code)
	}
	var resp EventListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Events[0].Kind != "terminal" {
		t.Errorf("events = %+v", resp)
	}

	// Kind filter with no matches returns an empty list, not null.
	w = e.do(t, http.MethodGet, "/events?kind=edit", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Events == nil || len(resp.Events) != 0 {
		t.Errorf("filtered events = %+v, want empty list", resp.Events)
	}

	// Unknown kind is a server-side validation error.
	if w := e.do(t, http.MethodGet, "/events?kind=bogus", nil); w.Code == http.StatusOK {
		t.Errorf("bogus kind = %d, want error", w.Code)
	}
}

func TestContentEndpoint(t *testing.T) {
	e := openSessionEnv(t)

	if err := e.rec.OnFileChanged("main.go", []byte("package main"), true, 1000); err != nil {
		t.Fatal(err)
	}
	if err := e.rec.OnFileChanged("main.go", []byte("package main\n"), true, 2000); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, "/content?path=main.go&ts=1500", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /content = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ContentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Content != "package main" {
		t.Errorf("content at 1500 = %q", resp.Content)
	}

	w = e.do(t, http.MethodGet, "/content?path=main.go&ts=2000", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Content != "package main\n" {
		t.Errorf("content at 2000 = %q", resp.Content)
	}

	// Before first capture and unknown paths are 404.
	if w := e.do(t, http.MethodGet, "/content?path=main.go&ts=500", nil); w.Code != http.StatusNotFound {
		t.Errorf("content before capture = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/content?path=ghost.go&ts=1500", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", w.Code)
	}
	// Parameter validation.
	if w := e.do(t, http.MethodGet, "/content?ts=1500", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/content?path=main.go", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing ts = %d, want 400", w.Code)
	}
}

func TestFilesEndpoint(t *testing.T) {
	e := openSessionEnv(t)
	_ = e.rec.OnFileChanged("a.go", []byte("a"), true, 1000)
	_ = e.rec.OnFileChanged("a.go", []byte("aa"), true, 1100)
	_ = e.rec.OnFileChanged("b.go", []byte("b"), true, 1200)

	w := e.do(t, http.MethodGet, "/files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /files = %d", w.Code)
	}
	var resp FileListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Files) != 2 || resp.Files[0].Changes != 2 {
		t.Errorf("files = %+v", resp.Files)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	e := openSessionEnv(t)

	w := e.do(t, http.MethodPost, "/bookmarks", map[string]string{"title": "found the bug"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /bookmarks = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/bookmarks", map[string]string{"kind": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("bookmark without title = %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodGet, "/bookmarks", nil)
	var resp BookmarkListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Bookmarks) != 1 || resp.Bookmarks[0].Title != "found the bug" {
		t.Errorf("bookmarks = %+v", resp.Bookmarks)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	e := openSessionEnv(t)
	_ = e.rec.OnTerminalCommand("t1", "ls", "", 0)

	w := e.do(t, http.MethodPost, "/playback", map[string]any{"from": 0, "speed": 0.001})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /playback = %d, body = %s", w.Code, w.Body.String())
	}
	var pb PlaybackResponse
	_ = json.Unmarshal(w.Body.Bytes(), &pb)
	if pb.ID == "" || pb.State != "playing" {
		t.Fatalf("playback = %+v", pb)
	}

	if w := e.do(t, http.MethodPost, "/playback/"+pb.ID+"/pause", nil); w.Code != http.StatusNoContent {
		t.Errorf("pause = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/playback/"+pb.ID, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &pb)
	if pb.State != "paused" {
		t.Errorf("state after pause = %s", pb.State)
	}

	if w := e.do(t, http.MethodPost, "/playback/"+pb.ID+"/resume", nil); w.Code != http.StatusNoContent {
		t.Errorf("resume = %d", w.Code)
	}

	sess, _ := e.store.CurrentSession()
	w = e.do(t, http.MethodPost, "/playback/"+pb.ID+"/seek", map[string]int64{"ts": sess.StartedAt})
	if w.Code != http.StatusOK {
		t.Errorf("seek = %d, body = %s", w.Code, w.Body.String())
	}

	if w := e.do(t, http.MethodDelete, "/playback/"+pb.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/playback/"+pb.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/playback/unknown/pause", nil); w.Code != http.StatusNotFound {
		t.Errorf("pause unknown = %d, want 404", w.Code)
	}
}

func TestPlaybackWithoutSession(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodPost, "/playback", map[string]any{"from": 0}); w.Code != http.StatusNotFound {
		t.Errorf("playback without session = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	if _, err := e.store.BeginSession(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	e := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader([]byte("{broken")))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("broken JSON = %d, want 400", w.Code)
	}
}
