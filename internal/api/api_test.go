package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/settings"
	"github.com/starford/ansuz/internal/testutil"
)

type fakeVault struct {
	creates map[string]string
	folders []string
	remote  []models.RemoteCard
	fail    bool
}

func (f *fakeVault) Create(_ context.Context, path, content string) error {
	if f.fail {
		return errors.New("simulated write failure")
	}
	f.creates[path] = content
	return nil
}

func (f *fakeVault) ListFolders(context.Context) ([]string, error) {
	if f.fail {
		return nil, errors.New("unreachable")
	}
	return f.folders, nil
}

func (f *fakeVault) SearchByURL(_ context.Context, sourceURL string) ([]models.RemoteCard, error) {
	var out []models.RemoteCard
	for _, c := range f.remote {
		if c.SourceURL == sourceURL {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeVault) SearchByID(_ context.Context, id string) (*models.RemoteCard, error) {
	for _, c := range f.remote {
		if strings.Contains(c.RawContent, id) {
			return &c, nil
		}
	}
	return nil, nil
}

type testClock struct {
	at time.Time
}

func (c *testClock) now() time.Time { return c.at }

// testEnv wires a temp store, session service, reconciler and router.
// authToken empty means auth disabled.
func testEnv(t *testing.T, authToken string) (http.Handler, *cardstore.Store, *fakeVault, *testClock) {
	t.Helper()

	store := testutil.TestStore(t)
	clock := &testClock{at: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}
	fv := &fakeVault{creates: map[string]string{}, folders: []string{"/", "Clips"}}

	sessions := session.New(store, nil, nil, session.WithClock(clock.now))
	rec := reconciler.New(store, nil, nil, nil,
		reconciler.WithFactory(func(*settings.Settings) reconciler.VaultWriter { return fv }),
		reconciler.WithClock(clock.now))
	h := NewHandler(store, sessions, rec, nil,
		func(*settings.Settings) VaultBrowser { return fv })

	router := NewRouter(h, authToken != "", authToken, nil)
	return router, store, fv, clock
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func configure(t *testing.T, router http.Handler) {
	t.Helper()
	cfg := settings.Default()
	cfg.APIKey = "key"
	w := doJSON(t, router, http.MethodPut, "/settings", cfg)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCreateAndGetCard(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{
		Title: "Hello", Content: "# Hello", SourceURL: "https://e.com/p", SourceTitle: "Page",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == "" || created.Status != models.StatusDraft {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(t, router, http.MethodGet, "/cards/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got Card
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Hello" || got.SourceURL != "https://e.com/p" {
		t.Errorf("got %+v", got)
	}
}

func TestCreateCardSeedsTemplate(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{
		TemplateID: "bookmark", SourceURL: "https://e.com/p", SourceTitle: "Page",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if !strings.Contains(created.Content, "type: bookmark") {
		t.Errorf("template not rendered:\n%s", created.Content)
	}
	if !strings.Contains(created.Content, created.ID) {
		t.Error("card id not embedded in seeded content")
	}
	if strings.Contains(created.Content, "{{") {
		t.Errorf("unrendered token in %q", created.Content)
	}
}

func TestListCardsBySource(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	for _, req := range []CreateCardRequest{
		{Title: "a", Content: "x", SourceURL: "https://a.com"},
		{Title: "b", Content: "x", SourceURL: "https://b.com"},
		{Title: "g", Content: "x"},
	} {
		if w := doJSON(t, router, http.MethodPost, "/cards", req); w.Code != http.StatusCreated {
			t.Fatalf("create = %d", w.Code)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/cards?source=https%3A%2F%2Fa.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp CardListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 (page card + global card)", resp.Total)
	}
}

func TestUpdateCard(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "v1", Content: "one"})
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, router, http.MethodPut, "/cards/"+created.ID, UpdateCardRequest{Title: "v2", Content: "two"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var updated Card
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Title != "v2" || updated.Content != "two" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestUpdateCardNotFound(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	w := doJSON(t, router, http.MethodPut, "/cards/ghost", UpdateCardRequest{Content: "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteCardTwoStep(t *testing.T) {
	router, store, _, clock := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "bye", Content: "gone"})
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	// First call arms only.
	w = doJSON(t, router, http.MethodDelete, "/cards/"+created.ID, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first delete = %d, want 202", w.Code)
	}
	if _, err := store.Get(created.ID); err != nil {
		t.Fatal("card removed on first call")
	}

	// Second call within the window removes.
	clock.at = clock.at.Add(2 * time.Second)
	w = doJSON(t, router, http.MethodDelete, "/cards/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("second delete = %d, want 204", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/cards/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestUploadCardNotConfigured(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "x", Content: "y"})
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, router, http.MethodPost, "/cards/"+created.ID+"/upload", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("upload without api key = %d, want 412", w.Code)
	}
}

func TestUploadCard(t *testing.T) {
	router, _, fv, _ := testEnv(t, "")
	configure(t, router)

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "My Note", Content: "body"})
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, router, http.MethodPost, "/cards/"+created.ID+"/upload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var synced Card
	_ = json.Unmarshal(w.Body.Bytes(), &synced)
	if synced.Status != models.StatusSynced {
		t.Errorf("status = %q", synced.Status)
	}
	if _, ok := fv.creates["My Note.md"]; !ok {
		t.Errorf("destinations = %v", fv.creates)
	}
}

func TestUploadCardFailure(t *testing.T) {
	router, store, fv, _ := testEnv(t, "")
	configure(t, router)

	w := doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "x", Content: "y"})
	var created Card
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	fv.fail = true
	w = doJSON(t, router, http.MethodPost, "/cards/"+created.ID+"/upload", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("failed upload = %d, want 502", w.Code)
	}
	card, _ := store.Get(created.ID)
	if card.Status != models.StatusDraft {
		t.Errorf("failed upload changed status to %q", card.Status)
	}
}

func TestUploadAll(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	configure(t, router)

	for _, title := range []string{"one", "two"} {
		doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: title, Content: "c"})
	}

	w := doJSON(t, router, http.MethodPost, "/cards/upload-all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("upload-all = %d, body = %s", w.Code, w.Body.String())
	}
	var res UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Uploaded) != 2 || len(res.Failed) != 0 {
		t.Errorf("res = %+v", res)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/cards", CreateCardRequest{Title: "find", Content: "uniquetoken here"})

	w := doJSON(t, router, http.MethodGet, "/cards/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	results := resp["results"].([]any)
	if len(results) != 1 {
		t.Errorf("search results = %d, want 1", len(results))
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/cards/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", StartSessionRequest{
		SourceURL: "https://e.com/p", SourceTitle: "Page",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start = %d", w.Code)
	}
	var st SessionState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Initialized {
		t.Error("session seeded eagerly")
	}

	// Preview seeds lazily.
	w = doJSON(t, router, http.MethodPost, "/sessions/"+st.CardID+"/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Mode != session.ModePreviewing || !st.Initialized {
		t.Errorf("state = %+v", st)
	}

	doJSON(t, router, http.MethodPut, "/sessions/"+st.CardID, UpdateSessionRequest{Title: "t", Content: "edited"})

	w = doJSON(t, router, http.MethodPost, "/sessions/"+st.CardID+"/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	var card Card
	_ = json.Unmarshal(w.Body.Bytes(), &card)
	if card.Content != "edited" || card.Status != models.StatusDraft {
		t.Errorf("card = %+v", card)
	}
}

func TestSaveEmptySessionRejected(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", StartSessionRequest{})
	var st SessionState
	_ = json.Unmarshal(w.Body.Bytes(), &st)

	doJSON(t, router, http.MethodPut, "/sessions/"+st.CardID, UpdateSessionRequest{Content: "  "})
	w = doJSON(t, router, http.MethodPost, "/sessions/"+st.CardID+"/save", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty save = %d, want 400", w.Code)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	// Defaults come back before anything is saved.
	w := doJSON(t, router, http.MethodGet, "/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings = %d", w.Code)
	}
	var cfg settings.Settings
	_ = json.Unmarshal(w.Body.Bytes(), &cfg)
	if cfg.APIURL != "http://127.0.0.1:27123" || len(cfg.Templates) != 5 {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg.APIKey = "secret"
	cfg.AutoSync.Enabled = true
	if w = doJSON(t, router, http.MethodPut, "/settings", cfg); w.Code != http.StatusOK {
		t.Fatalf("put settings = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/settings", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &cfg)
	if cfg.APIKey != "secret" || !cfg.AutoSync.Enabled {
		t.Errorf("settings not persisted: %+v", cfg)
	}
}

func TestPutSettingsInvalid(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	cfg := settings.Default()
	cfg.AutoSync.IntervalMinutes = 99
	w := doJSON(t, router, http.MethodPut, "/settings", cfg)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid settings = %d, want 400", w.Code)
	}
}

func TestTemplateCRUD(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodPut, "/templates/custom", models.Template{
		Name: "Custom", FilenamePattern: "{{title}}", ContentTemplate: "body",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put template = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/templates", nil)
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if tpls := resp["templates"].([]any); len(tpls) != 6 {
		t.Errorf("templates = %d, want 6", len(tpls))
	}

	if w = doJSON(t, router, http.MethodDelete, "/templates/custom", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete template = %d, want 204", w.Code)
	}
	if w = doJSON(t, router, http.MethodDelete, "/templates/custom", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing template = %d, want 404", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.State != "checking" {
		t.Errorf("state = %q", resp.State)
	}

	if w = doJSON(t, router, http.MethodPost, "/status/recheck", nil); w.Code != http.StatusAccepted {
		t.Errorf("recheck = %d, want 202", w.Code)
	}
}

func TestVaultFoldersNotConfigured(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/vault/folders", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("folders without api key = %d, want 412", w.Code)
	}
}

func TestVaultFolders(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	configure(t, router)

	w := doJSON(t, router, http.MethodGet, "/vault/folders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("folders = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FolderListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Folders) != 2 {
		t.Errorf("folders = %v", resp.Folders)
	}
}

func TestVaultSearchByURL(t *testing.T) {
	router, _, fv, _ := testEnv(t, "")
	configure(t, router)
	fv.remote = []models.RemoteCard{
		{Path: "Clips/a.md", Filename: "a.md", SourceURL: "https://e.com/p"},
		{Path: "Clips/b.md", Filename: "b.md", SourceURL: "https://other.com"},
	}

	w := doJSON(t, router, http.MethodGet, "/vault/search?url=https%3A%2F%2Fe.com%2Fp", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("vault search = %d", w.Code)
	}
	var resp VaultSearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Cards) != 1 || resp.Cards[0].Filename != "a.md" {
		t.Errorf("cards = %+v", resp.Cards)
	}
}

func TestVaultSearchMissingParams(t *testing.T) {
	router, _, _, _ := testEnv(t, "")
	configure(t, router)
	w := doJSON(t, router, http.MethodGet, "/vault/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("vault search no params = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _, _, _ := testEnv(t, "secret123")

	raw, _ := json.Marshal(CreateCardRequest{Title: "auth", Content: "test"})
	req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _, _, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _, _, _ := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}
