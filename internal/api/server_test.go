package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/capshim/internal/app"
	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/bryanchriswhite/capshim/internal/capture"
	"github.com/bryanchriswhite/capshim/internal/config"
	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/bryanchriswhite/capshim/internal/proc"
	"github.com/bryanchriswhite/capshim/internal/session"
	"github.com/bryanchriswhite/capshim/internal/window"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const atomPID window.Atom = 36

// stubRunner answers compositor queries and fakes the capture program
type stubRunner struct {
	failCapture bool
}

func (r *stubRunner) Run(ctx context.Context, cmd proc.Command) (*proc.Result, error) {
	line := cmd.Args[len(cmd.Args)-1]
	switch {
	case strings.HasPrefix(line, "shot "):
		if r.failCapture {
			return &proc.Result{ExitCode: 1}, nil
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
			return nil, err
		}
		if err := os.WriteFile(strings.TrimPrefix(line, "shot "), buf.Bytes(), 0644); err != nil {
			return nil, err
		}
		return &proc.Result{}, nil
	case line == "ws":
		return &proc.Result{Stdout: []byte("8\n")}, nil
	case line == "title":
		return &proc.Result{Stdout: []byte("Notes\n")}, nil
	case line == "pid":
		return &proc.Result{Stdout: []byte("321\n")}, nil
	case line == "cursor":
		return &proc.Result{Stdout: []byte("300, 200\n")}, nil
	}
	return &proc.Result{ExitCode: 127}, nil
}

type stubDelegate struct{}

func (stubDelegate) GetWindowAttributes(window.Window) (window.Attributes, error) {
	return window.Attributes{X: 1, Y: 2, Width: 800, Height: 600}, nil
}

func (stubDelegate) GetProperty(window.PropertyRequest) (window.PropertyReply, error) {
	return window.PropertyReply{Format: 8, NItems: 3, Value: []byte("abc")}, nil
}

func (stubDelegate) AtomName(atom window.Atom) (string, error) {
	if atom == atomPID {
		return "_NET_WM_PID", nil
	}
	return "", errors.New("BadAtom")
}

func (stubDelegate) InternAtom(name string) (window.Atom, error) {
	if name == "_NET_WM_PID" {
		return atomPID, nil
	}
	return 0, errors.New("BadAtom")
}

func (stubDelegate) QueryPointer(win window.Window) (window.PointerReply, error) {
	return window.PointerReply{SameScreen: true, Root: 1, Child: win, RootX: 5, RootY: 5}, nil
}

func (stubDelegate) Close() error { return nil }

func newTestServer(t *testing.T, runner *stubRunner) (*Server, *app.App, *config.Config) {
	t.Setenv("CAPSHIM_CAPTURE_COMMAND", "")
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Capture.Command = "shot"
	cfg.Capture.TempPath = filepath.Join(dir, "capture.png")
	cfg.Cache.Path = filepath.Join(dir, "snapshot.json")
	cfg.Idle.Path = filepath.Join(dir, "idle-ms")
	cfg.Queries.Workspace = "ws"
	cfg.Queries.WindowTitle = "title"
	cfg.Queries.WindowPID = "pid"
	cfg.Queries.Cursor = "cursor"

	a, err := app.New(cfg, app.Options{Runner: runner, Delegate: stubDelegate{}})
	require.NoError(t, err)
	return NewServer(a), a, cfg
}

func do(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestCapture(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s, "POST", "/api/capture", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(capture.PhaseFresh), rec.Header().Get(PhaseHeader))

	img, format, err := imgcodec.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	rec = do(t, s, "POST", "/api/capture?format=bmp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/bmp", rec.Header().Get("Content-Type"))

	rec = do(t, s, "GET", "/api/capture", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCapture_Failed(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{failCapture: true})

	rec := do(t, s, "POST", "/api/capture", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, string(capture.PhaseFailed), rec.Header().Get(PhaseHeader))
	assert.Empty(t, rec.Body.Bytes())
}

func TestCapture_UnsupportedFormatLeavesSession(t *testing.T) {
	s, a, cfg := newTestServer(t, &stubRunner{})

	a.State.MarkCached(cache.Meta{Title: "cached", PID: 9})
	before := a.State.Snapshot()

	rec := do(t, s, "POST", "/api/capture?format=ico", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	after := a.State.Snapshot()
	assert.True(t, after.UsingCachedData)
	assert.Equal(t, before.Generation, after.Generation)

	_, err := os.Stat(cfg.Cache.Path)
	assert.True(t, os.IsNotExist(err), "snapshot written for a refused capture")

	var title map[string]string
	decode(t, do(t, s, "GET", "/api/window/title", nil), &title)
	assert.Equal(t, "cached", title["title"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "GET", "/api/capture", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "POST", "/api/window/title", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/nothing", nil).Code)
}

func TestEncodeArmsDimensionOverride(t *testing.T) {
	s, a, _ := newTestServer(t, &stubRunner{})

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	rec := do(t, s, "POST", "/api/encode?format=jpeg&option=quality&option=100", src.Bytes())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	_, format, err := imgcodec.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.True(t, a.State.Snapshot().DimensionPoison)

	var attrs window.Attributes
	decode(t, do(t, s, "GET", "/api/window/0x2a/attributes", nil), &attrs)
	assert.Zero(t, attrs.Width)
	assert.Zero(t, attrs.Height)

	decode(t, do(t, s, "GET", "/api/window/42/attributes", nil), &attrs)
	assert.Equal(t, 800, attrs.Width)

	rec = do(t, s, "POST", "/api/encode?format=png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadataFollowsSession(t *testing.T) {
	s, a, _ := newTestServer(t, &stubRunner{})

	var title map[string]string
	decode(t, do(t, s, "GET", "/api/window/title", nil), &title)
	assert.Equal(t, "Notes", title["title"])

	a.State.MarkCached(cache.Meta{Title: "Quarterly Report", PID: 4521})

	decode(t, do(t, s, "GET", "/api/window/title", nil), &title)
	assert.Equal(t, "Quarterly Report", title["title"])

	var pid map[string]int
	decode(t, do(t, s, "GET", "/api/window/pid", nil), &pid)
	assert.Equal(t, 4521, pid["pid"])
}

func TestProperty(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	for _, atom := range []string{"36", "0x24", "_NET_WM_PID"} {
		rec := do(t, s, "GET", "/api/window/7/property/"+atom, nil)
		require.Equal(t, http.StatusOK, rec.Code, atom)

		var reply window.PropertyReply
		decode(t, rec, &reply)
		assert.Equal(t, uint8(32), reply.Format)
		assert.Equal(t, uint32(321), binary.LittleEndian.Uint32(reply.Value))
	}

	rec := do(t, s, "GET", "/api/window/7/property/99?offset=0&length=4&delete=false&type=0x1f", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply window.PropertyReply
	decode(t, rec, &reply)
	assert.Equal(t, []byte("abc"), reply.Value)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/api/window/7/property/NO_SUCH_ATOM", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/api/window/7/property/36?length=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/api/window/zz/property/36", nil).Code)
}

func TestPointer(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s, "GET", "/api/pointer/9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply window.PointerReply
	decode(t, rec, &reply)
	assert.Equal(t, 300, reply.RootX)
	assert.Equal(t, 200, reply.WinY)
	assert.Equal(t, window.Window(9), reply.Child)
}

func TestIdle(t *testing.T) {
	s, _, cfg := newTestServer(t, &stubRunner{})

	var ext map[string]interface{}
	decode(t, do(t, s, "GET", "/api/idle/extension", nil), &ext)
	assert.Equal(t, true, ext["present"])

	require.NoError(t, os.WriteFile(cfg.Idle.Path, []byte("90000\n"), 0644))
	rec := do(t, s, "GET", "/api/idle/info?drawable=0x10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Window uint32 `json:"window"`
		Idle   uint32 `json:"idle"`
	}
	decode(t, rec, &info)
	assert.Equal(t, uint32(16), info.Window)
	assert.Equal(t, uint32(90000), info.Idle)
}

func TestState(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})

	var state map[string]json.RawMessage
	decode(t, do(t, s, "GET", "/api/state", nil), &state)
	assert.Equal(t, "null", string(state["cache"]))

	require.Equal(t, http.StatusOK, do(t, s, "POST", "/api/capture", nil).Code)

	decode(t, do(t, s, "GET", "/api/state", nil), &state)
	var meta struct {
		Title string `json:"title"`
		PID   int    `json:"pid"`
	}
	require.NoError(t, json.Unmarshal(state["cache"], &meta))
	assert.Equal(t, "Notes", meta.Title)
	assert.Equal(t, 321, meta.PID)
}

func TestEvents(t *testing.T) {
	s, _, _ := newTestServer(t, &stubRunner{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap session.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	resp, err := http.Post(ts.URL+"/api/capture", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ev capture.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, capture.PhaseFresh, ev.Phase)
	assert.True(t, ev.Allowed)
	assert.Equal(t, "Notes", ev.Title)
	assert.Equal(t, 4, ev.Width)
}

func TestListenUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "capshim")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "bridge.sock")

	// stale file from a previous run
	require.NoError(t, os.WriteFile(socket, nil, 0644))

	l, err := Listen(socket, 0)
	require.NoError(t, err)
	defer l.Close()

	fi, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	assert.Equal(t, "unix", l.Addr().Network())
}
