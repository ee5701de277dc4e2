package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

var ctx = context.Background()

// fakeAdmin is a minimal portfolio backend: collection GETs, PATCH, POST,
// the upload URL endpoint and a storage bucket accepting PUTs.
type fakeAdmin struct {
	mu        sync.Mutex
	server    *httptest.Server
	resources map[string]string // GET path -> data JSON
	patches   []recordedPatch
	posts     []map[string]any
	puts      []string
	failPatch string
	failPut   bool
}

type recordedPatch struct {
	Path string
	Body map[string]any
}

func newFakeAdmin(t *testing.T) *fakeAdmin {
	t.Helper()
	fa := &fakeAdmin{resources: map[string]string{}}
	fa.server = httptest.NewServer(http.HandlerFunc(fa.handle))
	t.Cleanup(fa.server.Close)
	return fa
}

func (fa *fakeAdmin) handle(w http.ResponseWriter, r *http.Request) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		data, ok := fa.resources[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"not found"}`))
			return
		}
		fmt.Fprintf(w, `{"success":true,"data":%s}`, data)

	case r.Method == http.MethodPatch:
		if fa.failPatch != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"success":false,"message":%q}`, fa.failPatch)
			return
		}
		var m map[string]any
		json.Unmarshal(body, &m)
		fa.patches = append(fa.patches, recordedPatch{Path: r.URL.Path, Body: m})
		fmt.Fprintf(w, `{"success":true,"data":%s}`, body)

	case r.Method == http.MethodPost && r.URL.Path == backend.UploadURLPath:
		var req struct {
			FileName string `json:"fileName"`
		}
		json.Unmarshal(body, &req)
		key := "uploads/" + req.FileName
		fmt.Fprintf(w, `{"success":true,"data":{"url":%q,"s3ObjectKey":%q}}`, fa.server.URL+"/bucket/"+key, key)

	case r.Method == http.MethodPost:
		var m map[string]any
		json.Unmarshal(body, &m)
		fa.posts = append(fa.posts, m)
		fmt.Fprintf(w, `{"success":true,"data":{"_id":"new-%d"}}`, len(fa.posts))

	case r.Method == http.MethodPut:
		if fa.failPut {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fa.puts = append(fa.puts, strings.TrimPrefix(r.URL.Path, "/bucket/"))
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type harness struct {
	svc   *Service
	admin *fakeAdmin
	store *storage.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	admin := newFakeAdmin(t)
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := backend.NewWithHTTPClient(admin.server.URL, "token", admin.server.Client())
	coord := upload.NewCoordinator(client, store, "https://cdn.example.com", 2)
	return &harness{
		svc:   New(store, client, coord, Options{}),
		admin: admin,
		store: store,
	}
}

func (h *harness) pullProjects(t *testing.T) []Entity {
	t.Helper()
	h.admin.resources["/api/admin/project"] = `[
		{"_id":"p1","name":"Folio","images":["https://cdn.example.com/a.png"],"tags":["go"]},
		{"_id":"p2","name":"Other","images":["https://cdn.example.com/b.png"]}
	]`
	got, err := h.svc.Pull(ctx, resource.Project)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	return got
}

func writeImage(t *testing.T, name string) tracker.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	f, err := upload.FileFromPath(path)
	if err != nil {
		t.Fatalf("FileFromPath: %v", err)
	}
	return f
}

func TestPull_ListsInBackendOrder(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	got, err := h.svc.List(resource.Project)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("List = %+v", got)
	}
	if got[0].HasChanges() {
		t.Error("freshly pulled entity has changes")
	}
}

func TestPull_Singleton(t *testing.T) {
	h := newHarness(t)
	h.admin.resources["/api/admin/tweetIds"] = `{"tweetIds":["1234567890123456789"]}`

	if _, err := h.svc.Pull(ctx, resource.Twitter); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	e, err := h.svc.Get(resource.Twitter, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ids := e.Current.Tags(resource.TweetIDsField); len(ids) != 1 {
		t.Errorf("tweetIds = %v", ids)
	}
}

func TestPull_DuplicateIDsKeepsSessions(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)
	if _, err := h.svc.SetField(resource.Project, "p1", "name", "Edited"); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	h.admin.resources["/api/admin/project"] = `[{"_id":"p1","name":"A"},{"_id":"p1","name":"B"}]`
	if _, err := h.svc.Pull(ctx, resource.Project); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Pull error = %v, want duplicate id", err)
	}
	e, err := h.svc.Get(resource.Project, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Current.String("name") != "Edited" {
		t.Errorf("sessions replaced by a rejected pull: %q", e.Current.String("name"))
	}
}

func TestSave_SendsOnlyChangedFields(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	if _, err := h.svc.SetField(resource.Project, "p1", "name", "Folio 2"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	delta, err := h.svc.Changes(resource.Project, "p1")
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(delta) != 1 || delta["name"] != "Folio 2" {
		t.Fatalf("delta = %v", delta)
	}

	e, err := h.svc.Save(ctx, resource.Project, "p1")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.HasChanges() {
		t.Error("entity still has changes after save")
	}
	if len(h.admin.patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(h.admin.patches))
	}
	p := h.admin.patches[0]
	if p.Path != "/api/admin/project/p1" {
		t.Errorf("PATCH path = %q", p.Path)
	}
	if len(p.Body) != 1 || p.Body["name"] != "Folio 2" {
		t.Errorf("PATCH body = %v", p.Body)
	}

	if _, err := h.svc.Save(ctx, resource.Project, "p1"); !errors.Is(err, ErrNoChanges) {
		t.Errorf("second Save error = %v, want ErrNoChanges", err)
	}
}

func TestSave_UploadsPendingGalleryInOrder(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	ref1, err := h.svc.SelectImage(writeImage(t, "one.png"), true)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	ref2, err := h.svc.SelectImage(writeImage(t, "two.png"), true)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if len(h.admin.puts) != 0 {
		t.Fatal("selecting a file must not upload it")
	}

	_, err = h.svc.Edit(resource.Project, "p1", func(rec tracker.Record) error {
		imgs, err := resource.AddImages(rec.Images("images"), []tracker.ImageRef{ref1, ref2}, resource.Project.GalleryLimit("images"))
		if err != nil {
			return err
		}
		rec["images"] = imgs
		return nil
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}

	e, err := h.svc.Save(ctx, resource.Project, "p1")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/uploads/one.png",
		"https://cdn.example.com/uploads/two.png",
	}
	sent, _ := h.admin.patches[0].Body["images"].([]any)
	if len(sent) != len(want) {
		t.Fatalf("sent images = %v", sent)
	}
	for i, w := range want {
		if sent[i] != w {
			t.Errorf("sent[%d] = %v, want %s", i, sent[i], w)
		}
		if got := e.Original.Images("images")[i].URL; got != w {
			t.Errorf("original[%d] = %s, want %s", i, got, w)
		}
	}
	if refs := tracker.PendingRefs(e.Current); len(refs) != 0 {
		t.Errorf("pending refs after save: %v", refs)
	}

	active, err := h.store.ActivePreviews()
	if err != nil {
		t.Fatalf("ActivePreviews: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("previews still held after save: %d", len(active))
	}
}

func TestSave_FailureLeavesOriginalUntouched(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)
	h.admin.failPatch = "Project name already taken"

	if _, err := h.svc.SetField(resource.Project, "p1", "name", "Dup"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	_, err := h.svc.Save(ctx, resource.Project, "p1")
	var be *backend.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backend.Message(err, "Failed to save") != "Project name already taken" {
		t.Errorf("message = %q", backend.Message(err, "Failed to save"))
	}

	e, err := h.svc.Get(resource.Project, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Original.String("name") != "Folio" {
		t.Errorf("original name = %q, want Folio", e.Original.String("name"))
	}
	if e.Current.String("name") != "Dup" {
		t.Errorf("current name = %q, edit lost", e.Current.String("name"))
	}
	if e.Saving {
		t.Error("saving flag left set after failure")
	}
}

func TestSave_UploadFailureSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)
	h.admin.failPut = true

	ref, err := h.svc.SelectImage(writeImage(t, "x.png"), true)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if _, err := h.svc.Edit(resource.Project, "p2", func(rec tracker.Record) error {
		rec["images"] = append(rec.Images("images"), ref)
		return nil
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	_, err = h.svc.Save(ctx, resource.Project, "p2")
	var ue *upload.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if len(h.admin.patches) != 0 {
		t.Errorf("PATCH sent despite upload failure: %v", h.admin.patches)
	}
	e, _ := h.svc.Get(resource.Project, "p2")
	if len(e.Original.Images("images")) != 1 {
		t.Errorf("original images changed: %v", e.Original.Images("images"))
	}
}

func TestSave_RejectsWhileSaving(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	if _, err := h.svc.SetField(resource.Project, "p1", "name", "X"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := h.store.BeginSave("project", "p1"); err != nil {
		t.Fatalf("BeginSave: %v", err)
	}
	if _, err := h.svc.Save(ctx, resource.Project, "p1"); !errors.Is(err, ErrSaving) {
		t.Errorf("Save error = %v, want ErrSaving", err)
	}
	if _, err := h.svc.SetField(resource.Project, "p1", "name", "Y"); !errors.Is(err, ErrSaving) {
		t.Errorf("SetField error = %v, want ErrSaving", err)
	}
	if _, err := h.svc.SetField(resource.Project, "p2", "name", "Y"); err != nil {
		t.Errorf("editing another session: %v", err)
	}
}

func TestEdit_ValidationLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	_, err := h.svc.Edit(resource.Project, "p1", func(rec tracker.Record) error {
		tags, err := resource.AddTag(rec.Tags("tags"), "  ")
		if err != nil {
			return err
		}
		rec["tags"] = tags
		return nil
	})
	var ve *resource.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if delta, _ := h.svc.Changes(resource.Project, "p1"); delta != nil {
		t.Errorf("delta after rejected edit = %v", delta)
	}
}

func TestSetField_EnforcesListRules(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)
	h.admin.resources["/api/admin/tweetIds"] = `{"tweetIds":["1000000000000000001"]}`
	if _, err := h.svc.Pull(ctx, resource.Twitter); err != nil {
		t.Fatalf("Pull twitter: %v", err)
	}

	images := make([]any, 13)
	for i := range images {
		images[i] = fmt.Sprintf("https://cdn.example.com/%d.png", i)
	}
	tests := []struct {
		name  string
		kind  *resource.Kind
		id    string
		field string
		value any
	}{
		{"gallery over cap", resource.Project, "p1", "images", images},
		{"languages over total", resource.Project, "p1", "languagesUsed", `[{"name":"Go","percent":95},{"name":"go","percent":60}]`},
		{"pair key repeated", resource.Project, "p1", "developmentSummary", `[{"title":"Role","value":"a"},{"title":"ROLE","value":"b"}]`},
		{"bad tweet ids", resource.Twitter, "", resource.TweetIDsField, `["abc","abc","1","2","3","4","5"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SetField(tt.kind, tt.id, tt.field, tt.value)
			var ve *resource.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if delta, _ := h.svc.Changes(tt.kind, tt.id); delta != nil {
				t.Errorf("rejected edit left changes: %v", delta)
			}
		})
	}
	if len(h.admin.patches) != 0 {
		t.Errorf("patches sent: %v", h.admin.patches)
	}
}

func TestSave_RechecksRulesBeforePatch(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	// A working copy stored without going through Edit.
	e, err := h.svc.Get(resource.Project, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	bad := e.Current.Clone()
	bad["languagesUsed"] = []tracker.Language{{Name: "Go", Percent: 95}, {Name: "Rust", Percent: 60}}
	cur, _ := resource.Project.Encode("p1", bad)
	orig, _ := resource.Project.Encode("p1", e.Original)
	if err := h.store.UpdateSession(storage.Session{Kind: "project", ID: "p1", Current: cur, Original: orig}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	_, err = h.svc.Save(ctx, resource.Project, "p1")
	var ve *resource.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Save error = %v, want ValidationError", err)
	}
	if len(h.admin.patches) != 0 {
		t.Errorf("PATCH sent: %v", h.admin.patches)
	}
	if e, _ := h.svc.Get(resource.Project, "p1"); e.Saving {
		t.Error("session left saving")
	}
}

func TestDiscard_ReleasesPreviews(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	ref, err := h.svc.SelectImage(writeImage(t, "d.png"), true)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if _, err := h.svc.Edit(resource.Project, "p1", func(rec tracker.Record) error {
		rec["images"] = append(rec.Images("images"), ref)
		return nil
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	e, err := h.svc.Discard(resource.Project, "p1")
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if e.HasChanges() {
		t.Error("changes remain after discard")
	}
	active, _ := h.store.ActivePreviews()
	if len(active) != 0 {
		t.Errorf("previews held after discard: %d", len(active))
	}
}

func TestCreate_UploadsAndAppends(t *testing.T) {
	h := newHarness(t)
	h.pullProjects(t)

	logo, err := h.svc.SelectImage(writeImage(t, "logo.png"), false)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	img, err := h.svc.SelectImage(writeImage(t, "award.png"), true)
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}

	rec := resource.Achievement.Blank()
	rec["title"] = "Hackathon"
	rec["companyLogo"] = logo
	rec["descriptionPoints"] = []string{"first place"}
	rec["images"] = []tracker.ImageRef{img}

	e, err := h.svc.Create(ctx, resource.Achievement, rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID != "new-1" {
		t.Errorf("ID = %q, want new-1", e.ID)
	}
	if len(h.admin.posts) != 1 {
		t.Fatalf("posts = %d", len(h.admin.posts))
	}
	if got := h.admin.posts[0]["companyLogo"]; got != "https://cdn.example.com/uploads/logo.png" {
		t.Errorf("posted companyLogo = %v", got)
	}
	if e.Current.Image("companyLogo").URL != "https://cdn.example.com/uploads/logo.png" {
		t.Errorf("stored companyLogo = %+v", e.Current.Image("companyLogo"))
	}

	list, err := h.svc.List(resource.Achievement)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "new-1" || list[0].HasChanges() {
		t.Errorf("achievements = %+v", list)
	}
}

func TestCreate_ValidationSendsNothing(t *testing.T) {
	h := newHarness(t)

	rec := resource.Experience.Blank()
	rec["title"] = "Engineer"
	_, err := h.svc.Create(ctx, resource.Experience, rec)
	var ve *resource.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(h.admin.posts) != 0 || len(h.admin.puts) != 0 {
		t.Error("request sent for invalid entity")
	}
}

func TestSelectImage_RejectsOversized(t *testing.T) {
	h := newHarness(t)
	h.svc.maxBytes = 4

	_, err := h.svc.SelectImage(writeImage(t, "big.png"), false)
	var ve *upload.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected upload.ValidationError, got %v", err)
	}
	active, _ := h.store.ActivePreviews()
	if len(active) != 0 {
		t.Errorf("preview created for rejected file")
	}
}
