package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/progress"
	testutil "github.com/dl-alexandre/bimview/internal/testing"
	"github.com/dl-alexandre/bimview/internal/testing/mocks"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/dl-alexandre/bimview/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Command string           `json:"command"`
	Data    json.RawMessage  `json:"data"`
	Errors  []types.CLIError `json:"errors"`
}

func newTestServer(t *testing.T, s *mocks.MockFileStore) (*httptest.Server, *viewer.Context) {
	t.Helper()
	v, err := viewer.New(viewer.Options{Config: config.DefaultConfig(), Store: s})
	require.NoError(t, err)
	t.Cleanup(v.Close)

	projects := &config.ProjectSet{Projects: []config.Project{
		{Name: "Tower", DriveID: "d1", SpecificPath: "Models"},
	}}
	srv := httptest.NewServer(New(v, projects, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, v
}

func sampleStore() *mocks.MockFileStore {
	s := mocks.NewMockFileStore()
	s.AddFolder(utils.RootFolderID, testutil.TestFolder("models", "Models", ""))
	s.AddFolder("models",
		testutil.TestFile("ar1", "AR1.ifc", ""),
		testutil.TestFile("hv1", "HV1.gltf", ""),
		testutil.TestFile("hv1b", "HV1.bin", ""),
	)
	s.SetContent("ar1", []byte(testutil.SampleIFC))
	s.SetContent("hv1", testutil.TriangleGLTF("HV1.bin", 5))
	s.SetContent("hv1b", testutil.TriangleBin())
	return s
}

func call(t *testing.T, method, url string, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestServer_BrowseSelectLoad(t *testing.T) {
	srv, _ := newTestServer(t, sampleStore())

	code, env := call(t, http.MethodPost, srv.URL+"/api/projects/Tower/open", "")
	require.Equal(t, http.StatusOK, code, env.Errors)
	var view viewer.ProjectView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "models", view.FolderID)
	require.Len(t, view.Tree.Items, 4)

	code, _ = call(t, http.MethodPost, srv.URL+"/api/tree/ar1/check", "")
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, http.MethodPost, srv.URL+"/api/tree/hv1/check", "")
	require.Equal(t, http.StatusOK, code)
	var selected []types.SelectedFile
	require.NoError(t, json.Unmarshal(env.Data, &selected))
	assert.Len(t, selected, 2)

	code, env = call(t, http.MethodPost, srv.URL+"/api/tree/hv1b/check", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, utils.ErrCodeUnsupportedFormat, env.Errors[0].Code)

	code, env = call(t, http.MethodPost, srv.URL+"/api/load?wait=true", "")
	require.Equal(t, http.StatusOK, code, env.Errors)
	var report types.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 2, report.Loaded)
	assert.InDelta(t, 100, report.Progress, 1e-9)

	code, env = call(t, http.MethodGet, srv.URL+"/api/scene", "")
	require.Equal(t, http.StatusOK, code)
	var snap struct {
		Models []struct {
			Name      string `json:"name"`
			Materials []struct {
				Color string `json:"color"`
			} `json:"materials"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Len(t, snap.Models, 2)
	assert.Equal(t, "AR1.ifc", snap.Models[0].Name)
	assert.Equal(t, "#0000ff", snap.Models[1].Materials[0].Color)

	code, env = call(t, http.MethodGet, srv.URL+"/api/load", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), report.BatchID)
}

func TestServer_SecondLoadDoesNotStealCancel(t *testing.T) {
	store := sampleStore()
	started := make(chan struct{})
	store.FetchContentFunc = func(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	v, err := viewer.New(viewer.Options{Config: config.DefaultConfig(), Store: store})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	s := New(v, &config.ProjectSet{}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	_, err = v.OpenDrive(context.Background(), "d1", "models")
	require.NoError(t, err)
	_, err = v.Check("ar1")
	require.NoError(t, err)

	code, env := call(t, http.MethodPost, srv.URL+"/api/load", "")
	require.Equal(t, http.StatusAccepted, code, env.Errors)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not start")
	}

	code, env = call(t, http.MethodPost, srv.URL+"/api/load", "")
	assert.Equal(t, http.StatusConflict, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, utils.ErrCodeBatchInProgress, env.Errors[0].Code)

	code, env = call(t, http.MethodDelete, srv.URL+"/api/load", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"cancelled":true}`, string(env.Data))

	require.Eventually(t, func() bool { return !v.Loader.Busy() }, 2*time.Second, 5*time.Millisecond)
	s.batches.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.cancelLoad)
	require.NotNil(t, s.lastReport)
	if s.lastError != nil {
		assert.NotEqual(t, utils.ErrCodeBatchInProgress, s.lastError.Code)
	}
}

func TestServer_Errors(t *testing.T) {
	srv, _ := newTestServer(t, sampleStore())

	code, env := call(t, http.MethodPost, srv.URL+"/api/projects/Nope/open", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, utils.ErrCodeProjectNotFound, env.Errors[0].Code)

	code, env = call(t, http.MethodPost, srv.URL+"/api/drive/open", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, utils.ErrCodeInvalidArgument, env.Errors[0].Code)

	code, env = call(t, http.MethodPost, srv.URL+"/api/tree/ghost/toggle", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, utils.ErrCodeFileNotFound, env.Errors[0].Code)
}

func TestServer_OpenDrive(t *testing.T) {
	srv, _ := newTestServer(t, sampleStore())

	code, env := call(t, http.MethodPost, srv.URL+"/api/drive/open", `{"driveId":"d1"}`)
	require.Equal(t, http.StatusOK, code, env.Errors)
	var view types.TreeView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Models", view.Items[0].Name)

	code, env = call(t, http.MethodPost, srv.URL+"/api/tree/models/toggle", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Len(t, view.Items, 4)
}

func TestServer_ProgressStream(t *testing.T) {
	srv, _ := newTestServer(t, sampleStore())
	code, _ := call(t, http.MethodPost, srv.URL+"/api/projects/Tower/open", "")
	require.Equal(t, http.StatusOK, code)
	call(t, http.MethodPost, srv.URL+"/api/tree/ar1/check", "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/progress", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	code, _ = call(t, http.MethodPost, srv.URL+"/api/load", "")
	require.Equal(t, http.StatusAccepted, code)

	var events []progress.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
		if ev.Type == progress.EventBatchFinished {
			break
		}
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.EventBatchFinished, last.Type)
	assert.InDelta(t, 100, last.Percentage, 1e-9)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percentage, events[i-1].Percentage)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, sampleStore())
	call(t, http.MethodGet, srv.URL+"/api/status", "")

	// the request is recorded after its response is written
	want := `bimview_http_requests_total{method="GET",path="GET /api/status",status="200"}`
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), want)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	v, err := viewer.New(viewer.Options{Config: config.DefaultConfig(), Store: sampleStore()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(v, nil, nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{utils.ErrCodeFileNotFound, http.StatusNotFound},
		{utils.ErrCodeBatchInProgress, http.StatusConflict},
		{utils.ErrCodeAuthExpired, http.StatusBadGateway},
		{utils.ErrCodeUnsupportedFormat, http.StatusUnprocessableEntity},
		{utils.ErrCodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(types.CLIError{Code: tt.code}), tt.code)
	}
}
