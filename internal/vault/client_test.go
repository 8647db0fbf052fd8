package vault

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbeOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"OK"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	if !c.Probe(context.Background()) {
		t.Error("probe should succeed against OK status")
	}
}

func TestProbeAuthenticatedFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"authenticated":true}`)
	}))
	defer srv.Close()

	if !New(srv.URL, "key", nil).Probe(context.Background()) {
		t.Error("probe should accept authenticated flag")
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse all connections

	if New(srv.URL, "key", nil).Probe(context.Background()) {
		t.Error("probe should fail against refused connection")
	}
}

func TestProbeNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "<html>not the api</html>")
	}))
	defer srv.Close()

	if New(srv.URL, "key", nil).Probe(context.Background()) {
		t.Error("probe should fail on non-JSON body")
	}
}

func TestCreate(t *testing.T) {
	var gotPath, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.EscapedPath()
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	err := c.Create(context.Background(), "Clips/My Note.md", "# hi")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gotPath != "/vault/Clips/My%20Note.md" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != "# hi" || gotType != "text/markdown" {
		t.Errorf("body = %q, type = %q", gotBody, gotType)
	}
}

func TestCreateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New(srv.URL, "key", nil).Create(context.Background(), "a.md", "x"); err == nil {
		t.Error("expected error on 500")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	if err := c.Update(context.Background(), "a.md", "v2"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := c.Delete(context.Background(), "a.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(methods) != 2 || methods[0] != http.MethodPut || methods[1] != http.MethodDelete {
		t.Errorf("methods = %v", methods)
	}
}

func TestReadParsesFrontmatter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "---\nsource_url: \"https://e.com/p\"\nsource_title: Page\ncreated: \"2024-03-05T10:00:00Z\"\n---\nbody text\n")
	}))
	defer srv.Close()

	card, err := New(srv.URL, "key", nil).Read(context.Background(), "Clips/p.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if card == nil {
		t.Fatal("card is nil")
	}
	if card.SourceURL != "https://e.com/p" || card.SourceTitle != "Page" {
		t.Errorf("card = %+v", card)
	}
	if card.Filename != "p.md" {
		t.Errorf("filename = %q", card.Filename)
	}
	if card.Content != "body text\n" {
		t.Errorf("content = %q", card.Content)
	}
}

func TestReadNotFoundIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	card, err := New(srv.URL, "key", nil).Read(context.Background(), "gone.md")
	if err != nil || card != nil {
		t.Errorf("card = %v, err = %v; want nil, nil", card, err)
	}
}

func TestReadNoFrontmatterIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "# plain note, no metadata")
	}))
	defer srv.Close()

	card, err := New(srv.URL, "key", nil).Read(context.Background(), "plain.md")
	if err != nil || card != nil {
		t.Errorf("card = %v, err = %v; want nil, nil", card, err)
	}
}

func TestListFoldersBFS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/vault/":
			io.WriteString(w, `{"files":["note.md","Clips/","Archive/"]}`)
		case "/vault/Clips/":
			io.WriteString(w, `{"files":["a.md","Web/"]}`)
		case "/vault/Archive/":
			w.WriteHeader(http.StatusInternalServerError) // skipped, not fatal
		case "/vault/Clips/Web/":
			io.WriteString(w, `{"files":[]}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	folders, err := New(srv.URL, "key", nil).ListFolders(context.Background())
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	want := []string{"/", "Archive", "Clips", "Clips/Web"}
	if len(folders) != len(want) {
		t.Fatalf("folders = %v, want %v", folders, want)
	}
	for i := range want {
		if folders[i] != want[i] {
			t.Errorf("folders[%d] = %q, want %q", i, folders[i], want[i])
		}
	}
}

func TestListFoldersBounded(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Every directory reveals another one: unbounded without the cap.
		json.NewEncoder(w).Encode(map[string]any{"files": []string{"deeper/"}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "key", nil).ListFolders(context.Background()); err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if requests > 50 {
		t.Errorf("requests = %d, traversal not bounded", requests)
	}
}

func TestSearchByURLSortsNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/simple/":
			io.WriteString(w, `[{"filename":"old.md"},{"filename":"new.md"},{"filename":"other.md"}]`)
		case strings.HasSuffix(r.URL.Path, "old.md"):
			io.WriteString(w, "---\nsource_url: \"https://e.com/p\"\ncreated: \"2024-01-01T00:00:00Z\"\n---\nx")
		case strings.HasSuffix(r.URL.Path, "new.md"):
			io.WriteString(w, "---\nsource_url: \"https://e.com/p\"\ncreated: \"2024-06-01T00:00:00Z\"\n---\nx")
		case strings.HasSuffix(r.URL.Path, "other.md"):
			io.WriteString(w, "---\nsource_url: \"https://other.com\"\ncreated: \"2024-12-01T00:00:00Z\"\n---\nx")
		}
	}))
	defer srv.Close()

	cards, err := New(srv.URL, "key", nil).SearchByURL(context.Background(), "https://e.com/p")
	if err != nil {
		t.Fatalf("SearchByURL: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len = %d, want 2 (other.com hit filtered out)", len(cards))
	}
	if cards[0].Filename != "new.md" || cards[1].Filename != "old.md" {
		t.Errorf("order = %s, %s", cards[0].Filename, cards[1].Filename)
	}
}

func TestSearchByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/simple/" {
			var q struct {
				Query string `json:"query"`
			}
			json.NewDecoder(r.Body).Decode(&q)
			if q.Query != "uuid-42" {
				t.Errorf("query = %q", q.Query)
			}
			io.WriteString(w, `[{"filename":"hit.md"}]`)
			return
		}
		io.WriteString(w, "---\nuuid: \"uuid-42\"\nsource_url: x\n---\nbody")
	}))
	defer srv.Close()

	card, err := New(srv.URL, "key", nil).SearchByID(context.Background(), "uuid-42")
	if err != nil {
		t.Fatalf("SearchByID: %v", err)
	}
	if card == nil || card.Path != "hit.md" {
		t.Errorf("card = %+v", card)
	}
}

func TestSearchTimeoutSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	card, err := New(srv.URL, "key", nil).SearchByID(context.Background(), "x")
	if err != nil || card != nil {
		t.Errorf("search failure must be silent: card=%v err=%v", card, err)
	}
	cards, err := New(srv.URL, "key", nil).SearchByURL(context.Background(), "x")
	if err != nil || cards != nil {
		t.Errorf("search failure must be silent: cards=%v err=%v", cards, err)
	}
}
