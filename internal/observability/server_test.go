package observability

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/protocol"
)

type fakeStage struct {
	snap protocol.ResyncPayload
	err  error
}

func (f *fakeStage) Snapshot(context.Context) (protocol.ResyncPayload, error) {
	return f.snap, f.err
}

func (f *fakeStage) WriteFrame(w io.Writer) error {
	return png.Encode(w, image.NewRGBA(image.Rect(0, 0, 4, 2)))
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func stopServer(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestServer_MetricsExposeEveryPackage(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.Metrics().Info.WithLabelValues("relay", "1.0.0").Set(1)
	server.Metrics().FramesDumped.Add(2)

	code, body := get(t, server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, code)

	for _, want := range []string{
		"go_goroutines",
		"process_",
		`theatre_info{role="relay",version="1.0.0"} 1`,
		"theatre_frames_dumped_total 2",
		"theatre_render_accumulator",
	} {
		assert.Contains(t, body, want)
	}
}

func TestServer_Probes(t *testing.T) {
	ready := false
	server := NewServer("127.0.0.1:0", func() bool { return ready })
	h := server.Handler()

	code, body := get(t, h, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))

	code, body = get(t, h, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", strings.TrimSpace(body))

	ready = true
	code, _ = get(t, h, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_ReadinessWithNilChecker(t *testing.T) {
	code, _ := get(t, NewServer("127.0.0.1:0", nil).Handler(), "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_StageNeedsAttachedView(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	code, _ := get(t, server.Handler(), "/stage")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, server.Handler(), "/stage/frame.png")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_StageServesSnapshotAndFrame(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.AttachStage(&fakeStage{snap: protocol.ResyncPayload{
		InsertData: []protocol.InsertData{{InsertID: "theatre-alice"}},
		Narrator:   true,
	}})

	code, body := get(t, server.Handler(), "/stage")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"insertid":"theatre-alice"`)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stage/frame.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestServer_StageUnavailable(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.AttachStage(&fakeStage{err: errors.New("loop stopped")})

	code, body := get(t, server.Handler(), "/stage")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "loop stopped")
}

func TestServer_StartServesOverTCP(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.Empty(t, server.Addr())

	_, err := server.Start()
	require.NoError(t, err)
	defer stopServer(t, server)

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	_, err := server.Start()
	require.NoError(t, err)
	defer stopServer(t, server)

	_, err = server.Start()
	assert.Error(t, err)
}

func TestServer_StartOnBusyAddressFails(t *testing.T) {
	first := NewServer("127.0.0.1:0", nil)
	_, err := first.Start()
	require.NoError(t, err)
	defer stopServer(t, first)

	second := NewServer(first.Addr(), nil)
	_, err = second.Start()
	require.Error(t, err)

	// A failed start leaves the server stoppable and restartable.
	assert.NoError(t, second.Stop(context.Background()))
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.NoError(t, server.Stop(context.Background()))

	_, err := server.Start()
	require.NoError(t, err)
	stopServer(t, server)
	stopServer(t, server)
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	defer stopServer(t, server)

	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("serve error not reported")
	}
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	stopServer(t, server)

	select {
	case serveErr, ok := <-errCh:
		assert.False(t, ok && serveErr != nil, "unexpected error: %v", serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed")
	}
}
