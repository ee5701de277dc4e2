package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/config"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// testBackend fakes the admin API and the storage bucket.
type testBackend struct {
	mu       sync.Mutex
	server   *httptest.Server
	requests []recordedRequest
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	tb := &testBackend{}

	tb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tb.mu.Lock()
		defer tb.mu.Unlock()

		var body bytes.Buffer
		body.ReadFrom(r.Body)
		tb.requests = append(tb.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body.String()})

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/project":
			w.Write([]byte(`{"success":true,"data":[
				{"_id":"p1","name":"Folio","images":["https://cdn.example.com/a.png"],"tags":["go"]},
				{"_id":"p2","name":"Other","images":["https://cdn.example.com/b.png"]}
			]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/tweetIds":
			w.Write([]byte(`{"success":true,"data":{"tweetIds":["1111111111111111111"]}}`))
		case r.Method == http.MethodPatch:
			fmt.Fprintf(w, `{"success":true,"data":%s}`, body.String())
		case r.Method == http.MethodPost && r.URL.Path == backend.UploadURLPath:
			var req struct {
				FileName string `json:"fileName"`
			}
			json.Unmarshal(body.Bytes(), &req)
			key := "uploads/" + req.FileName
			fmt.Fprintf(w, `{"success":true,"data":{"url":%q,"s3ObjectKey":%q}}`, tb.server.URL+"/bucket/"+key, key)
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"success":true,"data":{"_id":"created-1"}}`))
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"not found"}`))
		}
	}))

	t.Cleanup(tb.server.Close)
	return tb
}

func (tb *testBackend) find(method, path string) []recordedRequest {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	var out []recordedRequest
	for _, r := range tb.requests {
		if r.Method == method && (path == "" || r.Path == path) {
			out = append(out, r)
		}
	}
	return out
}

// useTestApp points every command at a temp data dir and the fake backend.
func useTestApp(t *testing.T) (*testBackend, string) {
	t.Helper()
	tb := newTestBackend(t)
	dir := t.TempDir()

	orig := openApp
	openApp = func() (*app, error) {
		store, err := storage.Open(dir)
		if err != nil {
			return nil, err
		}
		var cfg config.Config
		cfg.Assets.PublicURL = "https://cdn.example.com"
		cfg.Upload.Concurrency = 2
		cfg.Upload.MaxBytes = 1 << 20
		client := backend.NewWithHTTPClient(tb.server.URL, "test-token", tb.server.Client())
		return newApp(cfg, store, client), nil
	}
	t.Cleanup(func() { openApp = orig })
	return tb, dir
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()

	resetFlags(rootCmd)
	rootCmd.SetArgs(append(args, "--no-color"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("folio %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeImage(t *testing.T, name string, size int) string {
	t.Helper()
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, size)...)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func patchBody(t *testing.T, r recordedRequest) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(r.Body), &m); err != nil {
		t.Fatalf("decoding PATCH body: %v", err)
	}
	return m
}

func TestPullAndList(t *testing.T) {
	useTestApp(t)

	mustExecute(t, "pull", "projects")
	out := mustExecute(t, "list", "project")
	if !strings.Contains(out, "p1") || !strings.Contains(out, "Folio") || !strings.Contains(out, "p2") {
		t.Errorf("list output = %q", out)
	}
	if strings.Index(out, "p1") > strings.Index(out, "p2") {
		t.Error("list lost backend order")
	}
}

func TestSetDiffSave(t *testing.T) {
	tb, _ := useTestApp(t)
	mustExecute(t, "pull", "project")

	mustExecute(t, "set", "project", "p1", "name", "Folio 2")
	out := mustExecute(t, "diff", "project", "p1")
	if !strings.Contains(out, "- Folio") || !strings.Contains(out, "+ Folio 2") {
		t.Errorf("diff output = %q", out)
	}

	mustExecute(t, "save", "project", "p1")
	patches := tb.find(http.MethodPatch, "/api/admin/project/p1")
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	body := patchBody(t, patches[0])
	if len(body) != 1 || body["name"] != "Folio 2" {
		t.Errorf("PATCH body = %v, want only name", body)
	}

	// A second save has nothing to send.
	mustExecute(t, "save", "project", "p1")
	if n := len(tb.find(http.MethodPatch, "")); n != 1 {
		t.Errorf("patches after no-op save = %d", n)
	}
}

func TestTagEditsRoundTrip(t *testing.T) {
	useTestApp(t)
	mustExecute(t, "pull", "project")

	mustExecute(t, "tag", "add", "project", "p1", "tags", "cli")
	out := mustExecute(t, "diff", "project", "p1")
	if !strings.Contains(out, "tags") {
		t.Errorf("diff = %q, want tags", out)
	}

	mustExecute(t, "tag", "rm", "project", "p1", "tags", "1")
	out = mustExecute(t, "diff", "project", "p1")
	if strings.Contains(out, "tags") {
		t.Errorf("diff after undo = %q, want no changes", out)
	}

	if _, err := execute(t, "tag", "add", "project", "p1", "tags", "  "); err == nil {
		t.Error("blank tag accepted")
	}
	if _, err := execute(t, "tag", "add", "project", "p1", "name", "x"); err == nil {
		t.Error("tag add on a text field accepted")
	}
}

func TestLanguageLimit(t *testing.T) {
	useTestApp(t)
	mustExecute(t, "pull", "project")

	mustExecute(t, "lang", "add", "project", "p1", "languagesUsed", "Go", "95")
	_, err := execute(t, "lang", "add", "project", "p1", "languagesUsed", "Shell", "10")
	if err == nil || !strings.Contains(err.Error(), "Current: 105%") {
		t.Errorf("error = %v, want total limit", err)
	}
}

func TestImageAddUploadsOnSave(t *testing.T) {
	tb, dir := useTestApp(t)
	mustExecute(t, "pull", "project")

	one := writeImage(t, "one.png", 10)
	two := writeImage(t, "two.png", 10)
	mustExecute(t, "image", "add", "project", "p1", "images", one, two)
	if n := len(tb.find(http.MethodPut, "")); n != 0 {
		t.Fatalf("uploaded %d files before save", n)
	}

	mustExecute(t, "image", "move", "project", "p1", "images", "2", "0")
	mustExecute(t, "save", "project", "p1")

	if n := len(tb.find(http.MethodPut, "")); n != 2 {
		t.Fatalf("PUTs = %d, want 2", n)
	}
	body := patchBody(t, tb.find(http.MethodPatch, "/api/admin/project/p1")[0])
	images, _ := body["images"].([]any)
	want := []any{
		"https://cdn.example.com/uploads/two.png",
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/uploads/one.png",
	}
	if fmt.Sprint(images) != fmt.Sprint(want) {
		t.Errorf("images = %v, want %v", images, want)
	}

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if active, _ := store.ActivePreviews(); len(active) != 0 {
		t.Errorf("active previews after save = %d", len(active))
	}
}

func TestImageAddRejectsUnsupportedType(t *testing.T) {
	_, dir := useTestApp(t)
	mustExecute(t, "pull", "project")

	good := writeImage(t, "ok.png", 10)
	bad := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(bad, []byte("hello"), 0o644)

	if _, err := execute(t, "image", "add", "project", "p1", "images", good, bad); err == nil {
		t.Fatal("text file accepted as image")
	}

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if active, _ := store.ActivePreviews(); len(active) != 0 {
		t.Errorf("previews leaked after rejected selection: %d", len(active))
	}
}

func TestTweetAdd(t *testing.T) {
	tb, _ := useTestApp(t)
	mustExecute(t, "pull", "twitter")

	if _, err := execute(t, "tweet", "add", "12345"); err == nil || !strings.Contains(err.Error(), "Invalid Tweet ID format") {
		t.Errorf("error = %v, want format error", err)
	}

	mustExecute(t, "tweet", "add", "2222222222222222222")
	mustExecute(t, "save", "twitter")

	patches := tb.find(http.MethodPatch, "/api/admin/tweetIds")
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	body := patchBody(t, patches[0])
	ids, _ := body["tweetIds"].([]any)
	if len(ids) != 2 || ids[0] != "2222222222222222222" {
		t.Errorf("tweetIds = %v, want newest first", ids)
	}
}

func TestCreateValidation(t *testing.T) {
	tb, _ := useTestApp(t)

	img := writeImage(t, "shot.png", 10)
	_, err := execute(t, "create", "project", "--set", "name= ", "--image", "images="+img)
	if err == nil || !strings.Contains(err.Error(), "Project name is required") {
		t.Errorf("error = %v, want name required", err)
	}
	if n := len(tb.find(http.MethodPost, "")); n != 0 {
		t.Errorf("invalid create sent %d POSTs", n)
	}
}

func TestCreateUploadsAndAppends(t *testing.T) {
	tb, _ := useTestApp(t)
	mustExecute(t, "pull", "project")

	img := writeImage(t, "shot.png", 10)
	mustExecute(t, "create", "project", "--set", "name=New", "--set", `tags=["go"]`, "--image", "images="+img)

	posts := tb.find(http.MethodPost, "/api/admin/project")
	if len(posts) != 1 {
		t.Fatalf("POSTs = %d, want 1", len(posts))
	}
	if !strings.Contains(posts[0].Body, "https://cdn.example.com/uploads/shot.png") {
		t.Errorf("POST body = %s, want uploaded URL", posts[0].Body)
	}

	out := mustExecute(t, "list", "project")
	if !strings.Contains(out, "created-1") {
		t.Errorf("list = %q, want created entity", out)
	}
}

func TestShowJSON(t *testing.T) {
	useTestApp(t)
	mustExecute(t, "pull", "project")

	out := mustExecute(t, "show", "project", "p2", "--json")
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("show --json output not JSON: %v\n%s", err, out)
	}
	if rec["name"] != "Other" {
		t.Errorf("name = %v", rec["name"])
	}
}

func TestParseTarget(t *testing.T) {
	tgt, err := parseTarget(showCmd, []string{"about", "name"}, 1)
	if err != nil {
		t.Fatalf("singleton: %v", err)
	}
	if tgt.kind != resource.About || tgt.id != "" || tgt.rest[0] != "name" {
		t.Errorf("singleton target = %+v", tgt)
	}

	tgt, err = parseTarget(showCmd, []string{"project", "p1", "name"}, 1)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if tgt.id != "p1" {
		t.Errorf("id = %q", tgt.id)
	}

	if _, err := parseTarget(showCmd, []string{"project"}, 0); err == nil {
		t.Error("collection without id accepted")
	}
	if _, err := parseTarget(showCmd, []string{"widgets"}, 0); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestDecodeJSON_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusUnauthorized)
	rec.WriteString(`{"error":{"message":"invalid or missing bearer token"}}`)

	var v map[string]any
	err := decodeJSON(rec.Result(), &v)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v", err)
	}
}

func TestGC(t *testing.T) {
	useTestApp(t)
	if _, err := execute(t, "gc"); err != nil {
		t.Fatalf("gc: %v", err)
	}
}
