package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/project"
	"github.com/janelia-flyem/bgrid/storage"
	"github.com/janelia-flyem/bgrid/table"
)

func synthetic() *table.Table {
	return table.SyntheticBlockModel([3]int{5, 4, 3}, [3]float64{1, 1, 0.5}, bgrid.Vector3d{100, 200, 300}, false)
}

func newTestServer(t *testing.T, c *Config) (*Server, *project.Project) {
	t.Helper()
	ctx := context.Background()
	proj, err := project.Open(ctx, storage.NewKVStore(storage.NewMemoryDB(), bgrid.Zstd), "server")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := proj.WriteBlockModel(ctx, synthetic(), "pit.ore", project.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	s, err := New(proj, c)
	if err != nil {
		t.Fatal(err)
	}
	return s, proj
}

func do(t *testing.T, s *Server, method, urlStr string, payload io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

func TestReadEndpoints(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())

	resp := do(t, s, "GET", WebAPIPath+"elements", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list: %d %s", resp.Code, resp.Body)
	}
	var infos []storage.ElementInfo
	if err := json.Unmarshal(resp.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "pit.ore" || infos[0].NumCells != 60 {
		t.Errorf("list = %+v", infos)
	}

	resp = do(t, s, "GET", WebAPIPath+"elements?parent=pit", nil, nil)
	var children []string
	if err := json.Unmarshal(resp.Body.Bytes(), &children); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pit.ore"}, children); diff != "" {
		t.Errorf("children (-want +got):\n%s", diff)
	}

	resp = do(t, s, "GET", WebAPIPath+"elements/pit.ore/geometry", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("geometry: %d %s", resp.Code, resp.Body)
	}
	geom, err := geometry.UnmarshalGeometry(resp.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if geom.Kind() != geometry.Regular || geom.Shape() != [3]int{5, 4, 3} || geom.Corner() != (bgrid.Vector3d{100, 200, 300}) {
		t.Errorf("geometry = %v", geom.ToPortable())
	}

	params := url.Values{"attributes": {"depth"}, "query": {"c_style_xyz < 3"}}
	resp = do(t, s, "GET", WebAPIPath+"elements/pit.ore/table?"+params.Encode(), nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("table: %d %s", resp.Code, resp.Body)
	}
	if ct := resp.Header().Get("Content-Type"); ct != ArrowStreamType {
		t.Errorf("content type %q", ct)
	}
	got, err := table.ReadIPC(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 || !cmp.Equal(got.ColumnNames(), []string{"depth"}) {
		t.Errorf("table has %d rows, columns %v", got.Len(), got.ColumnNames())
	}

	resp = do(t, s, "GET", WebAPIPath+"elements/pit.ore/table?index=0,59&encode=true", nil, nil)
	got, err = table.ReadIPC(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 || got.Encoded == nil {
		t.Errorf("encoded table has %d rows, encoded %t", got.Len(), got.Encoded != nil)
	}

	tests := []struct {
		url  string
		code int
	}{
		{"elements/nope/geometry", http.StatusNotFound},
		{"elements/pit.ore/table?index=1&query=depth%3E0", http.StatusBadRequest},
		{"elements/pit.ore/table?index=60", http.StatusBadRequest},
		{"elements/pit.ore/table?index=x", http.StatusBadRequest},
		{"elements/pit.ore/table?attributes=gold", http.StatusBadRequest},
		{"nowhere", http.StatusNotFound},
	}
	for _, tc := range tests {
		if resp := do(t, s, "GET", WebAPIPath+tc.url, nil, nil); resp.Code != tc.code {
			t.Errorf("GET %s: got %d, want %d", tc.url, resp.Code, tc.code)
		}
	}
}

func TestWriteEndpoints(t *testing.T) {
	s, proj := newTestServer(t, DefaultConfig())

	var body bytes.Buffer
	if err := synthetic().WriteIPC(&body); err != nil {
		t.Fatal(err)
	}
	payload := body.Bytes()
	resp := do(t, s, "POST", WebAPIPath+"elements/waste/table?kind=RegularBlockModel", bytes.NewReader(payload), nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("write: %d %s", resp.Code, resp.Body)
	}
	resp = do(t, s, "POST", WebAPIPath+"elements/waste/table", bytes.NewReader(payload), nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("rewrite without overwrite: got %d", resp.Code)
	}
	resp = do(t, s, "POST", WebAPIPath+"elements/waste/table?overwrite=true", bytes.NewReader(payload), nil)
	if resp.Code != http.StatusCreated {
		t.Errorf("overwrite: got %d %s", resp.Code, resp.Body)
	}
	resp = do(t, s, "POST", WebAPIPath+"elements/waste/calculated", bytes.NewBufferString(`{"deep": "depth * 10"}`), nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("calculated: got %d %s", resp.Code, resp.Body)
	}
	resp = do(t, s, "DELETE", WebAPIPath+"elements/waste/attributes/f_style_zyx", nil, nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("delete attribute: got %d %s", resp.Code, resp.Body)
	}
	names, err := proj.BlockModelAttributes(context.Background(), "waste")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c_style_xyz", "depth", "deep"}, names); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}
	if resp := do(t, s, "DELETE", WebAPIPath+"elements/waste", nil, nil); resp.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", resp.Code)
	}
	if resp := do(t, s, "DELETE", WebAPIPath+"elements/waste", nil, nil); resp.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", resp.Code)
	}
}

func TestAuthorization(t *testing.T) {
	dir := t.TempDir()
	authFile := filepath.Join(dir, "auth.json")
	if err := os.WriteFile(authFile, []byte(`{"alice": "readwrite", "*": "read"}`), 0644); err != nil {
		t.Fatal(err)
	}
	c := DefaultConfig()
	c.Auth.SecretKey = "sesame"
	c.Auth.AuthFile = authFile
	s, proj := newTestServer(t, c)

	bearer := func(secret, user string) http.Header {
		token, err := NewToken(secret, user)
		if err != nil {
			t.Fatal(err)
		}
		return http.Header{"Authorization": {"Bearer " + token}}
	}
	tests := []struct {
		name   string
		header http.Header
		code   int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"malformed", http.Header{"Authorization": {"Token abc"}}, http.StatusUnauthorized},
		{"wrong secret", bearer("guess", "alice"), http.StatusUnauthorized},
		{"read-only user", bearer("sesame", "bob"), http.StatusForbidden},
		{"writer", bearer("sesame", "alice"), http.StatusNoContent},
	}
	for _, tc := range tests {
		resp := do(t, s, "DELETE", WebAPIPath+"elements/pit.ore/attributes/depth", nil, tc.header)
		if resp.Code != tc.code {
			t.Errorf("%s: got %d, want %d", tc.name, resp.Code, tc.code)
		}
	}
	if resp := do(t, s, "GET", WebAPIPath+"elements/pit.ore/attributes", nil, nil); resp.Code != http.StatusOK {
		t.Errorf("reads need no token, got %d", resp.Code)
	}

	log, err := proj.Changelog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	last := log[len(log)-1]
	if last.User != "alice" || last.Action != storage.ActionDelete || last.Element != "pit.ore" {
		t.Errorf("last change = %+v", last)
	}

	c.Server.ReadOnly = true
	s, _ = newTestServer(t, c)
	if resp := do(t, s, "DELETE", WebAPIPath+"elements/pit.ore", nil, bearer("sesame", "alice")); resp.Code != http.StatusForbidden {
		t.Errorf("read-only server: got %d", resp.Code)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.toml")
	config := `
[server]
httpAddress = "localhost:9000"
user = "modeller"
cors_domains = ["https://example.org"]

[logging]
logfile = "logs/bgrid.log"
max_log_size = 500

[store]
engine = "memory"
compression = "lz4"
path = "data"

[cache]
size = 16

[auth]
secret_key = "sesame"
`
	if err := os.WriteFile(filename, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.HTTPAddress != "localhost:9000" || c.Auth.SecretKey != "sesame" || c.Cache.Size != 16 {
		t.Errorf("config = %+v", c)
	}
	if want := filepath.Join(dir, "logs", "bgrid.log"); c.Logging.Logfile != want {
		t.Errorf("logfile %q, want %q", c.Logging.Logfile, want)
	}
	sc := c.StoreConfig()
	if sc.Engine != "memory" {
		t.Errorf("engine %q", sc.Engine)
	}
	if path, _, _ := sc.GetString("path"); path != filepath.Join(dir, "data") {
		t.Errorf("store path %q", path)
	}

	proj, closer, err := c.OpenProject(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if proj.User() != "modeller" {
		t.Errorf("user %q", proj.User())
	}
	if _, ok := proj.Store().(*storage.CachedStore); !ok {
		t.Errorf("store is %T, want a cached store", proj.Store())
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("expected error for missing config")
	}
}

func TestServeShutdown(t *testing.T) {
	c := DefaultConfig()
	c.Server.MaxConnections = 4
	s, _ := newTestServer(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Serve(ctx, "localhost:0"); err != nil {
		t.Errorf("serve after cancel: %v", err)
	}
}
