package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/bimview/internal/utils"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}), Options{
		BaseURL:      srv.URL + "/v1.0",
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	return client, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListChildren_RootAndPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/root/children", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("$top") == "" {
			t.Error("expected $top on first page")
		}
		writeJSON(w, 200, map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "f1", "name": "Models", "folder": map[string]int{"childCount": 2}},
				{"id": "i1", "name": "AR1.ifc", "size": 1024, "file": map[string]string{"mimeType": "application/octet-stream"}},
			},
			"@odata.nextLink": srvURL + "/v1.0/drives/d1/root/children/page2",
		})
	})
	mux.HandleFunc("/v1.0/drives/d1/root/children/page2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "t1", "name": "readme.txt", "file": map[string]string{}},
			},
		})
	})

	client, srv := newTestClient(t, mux)
	srvURL = srv.URL

	nodes, err := client.ListChildren(context.Background(), "d1", utils.RootFolderID)
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes across pages, got %d", len(nodes))
	}

	want := []struct {
		id     string
		folder bool
	}{{"f1", true}, {"i1", false}, {"t1", false}}
	for i, w := range want {
		if nodes[i].ID != w.id || nodes[i].IsFolder != w.folder {
			t.Errorf("node %d = %+v, want id=%s folder=%v", i, nodes[i], w.id, w.folder)
		}
		if nodes[i].ParentID != utils.RootFolderID {
			t.Errorf("node %d parent = %q, want root", i, nodes[i].ParentID)
		}
	}
	if nodes[1].Size != 1024 {
		t.Errorf("size = %d, want 1024", nodes[1].Size)
	}
}

func TestListChildren_ItemFolder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/items/f1/children", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"value": []interface{}{}})
	})
	client, _ := newTestClient(t, mux)

	nodes, err := client.ListChildren(context.Background(), "d1", "f1")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("expected empty folder, got %d nodes", len(nodes))
	}
}

func TestListChildren_NotFoundCarriesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/items/gone/children", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]interface{}{
			"error": map[string]string{"code": "itemNotFound", "message": "The resource could not be found."},
		})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.ListChildren(context.Background(), "d1", "gone")
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.CLIError.Code != utils.ErrCodeFileNotFound || appErr.CLIError.HTTPStatus != 404 {
		t.Errorf("got %+v", appErr.CLIError)
	}
	if appErr.CLIError.Context["backendCode"] != "itemNotFound" {
		t.Errorf("backend code not preserved: %v", appErr.CLIError.Context)
	}
}

func TestListChildren_UnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/root/children", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, 401, map[string]interface{}{
			"error": map[string]string{"code": "InvalidAuthenticationToken", "message": "Lifetime validation failed"},
		})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.ListChildren(context.Background(), "d1", "root")
	if !utils.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("401 should not be retried, got %d calls", n)
	}
}

func TestListChildren_RetriesServerErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/root/children", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, 200, map[string]interface{}{"value": []map[string]string{{"id": "a", "name": "A.ifc"}}})
	})
	client, _ := newTestClient(t, mux)

	nodes, err := client.ListChildren(context.Background(), "d1", "root")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(nodes) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("nodes=%d calls=%d", len(nodes), calls)
	}
}

func TestFetchContent_FollowsPreauthenticatedRedirect(t *testing.T) {
	payload := []byte("ISO-10303-21;\nHEADER;")
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/items/i1/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", srvURL+"/download?tempauth=abc")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("bearer token leaked to pre-authenticated URL")
		}
		_, _ = w.Write(payload)
	})
	client, srv := newTestClient(t, mux)
	srvURL = srv.URL

	var buf bytes.Buffer
	n, err := client.FetchContent(context.Background(), "d1", "i1", &buf)
	if err != nil {
		t.Fatalf("FetchContent() error = %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("got %d bytes %q", n, buf.String())
	}
}

func TestFetchContent_DirectBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/items/i2/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "glTF")
	})
	client, _ := newTestClient(t, mux)

	var buf bytes.Buffer
	if _, err := client.FetchContent(context.Background(), "d1", "i2", &buf); err != nil {
		t.Fatalf("FetchContent() error = %v", err)
	}
	if buf.String() != "glTF" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestFetchContent_Cancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/drives/d1/items/i1/content", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client, _ := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchContent(ctx, "d1", "i1", &bytes.Buffer{})
	if utils.ErrorCode(err) != utils.ErrCodeCancelled {
		t.Errorf("expected CANCELLED, got %v", err)
	}
}

func TestResolveSharedLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/sites/contoso.sharepoint.com:/sites/TowerA", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "contoso.sharepoint.com,abc,def", "displayName": "Tower A"})
	})
	mux.HandleFunc("/v1.0/sites/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/drive") {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, 200, map[string]string{"id": "drive-42", "name": "Documents"})
	})
	client, _ := newTestClient(t, mux)

	ref, err := client.ResolveSharedLink(context.Background(), "https://contoso.sharepoint.com/:f:/s/TowerA/EoQx")
	if err != nil {
		t.Fatalf("ResolveSharedLink() error = %v", err)
	}
	if ref.DriveID != "drive-42" || ref.Name != "Tower A" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestParseSiteLink(t *testing.T) {
	tests := []struct {
		link    string
		host    string
		site    string
		wantErr bool
	}{
		{"https://contoso.sharepoint.com/:f:/s/TowerA/EoQx", "contoso.sharepoint.com", "TowerA", false},
		{"https://contoso.sharepoint.com/:f:/r/sites/TowerA/Shared%20Documents", "contoso.sharepoint.com", "TowerA", false},
		{"https://contoso.sharepoint.com/sites/Plant/Docs", "contoso.sharepoint.com", "Plant", false},
		{"https://contoso.sharepoint.com/personal/x", "", "", true},
		{"not a url", "", "", true},
	}
	for _, tt := range tests {
		host, site, err := ParseSiteLink(tt.link)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSiteLink(%q) error = %v, wantErr %v", tt.link, err, tt.wantErr)
			continue
		}
		if host != tt.host || site != tt.site {
			t.Errorf("ParseSiteLink(%q) = %q, %q", tt.link, host, site)
		}
	}
}
