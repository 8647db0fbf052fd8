// Package vault is the client for the Obsidian Local REST API. Every
// operation is a single bounded request/response with no retries; retry
// policy belongs to callers (the reconciler retries only via its timer).
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/models"
)

// Per-operation timeouts. Short enough to keep callers responsive when the
// host app is not running.
const (
	probeTimeout  = 2 * time.Second
	mutateTimeout = 5 * time.Second
	searchTimeout = 3 * time.Second

	// maxFolderRequests caps the breadth-first vault traversal so that
	// pathological or very large vaults cannot hang folder listing.
	maxFolderRequests = 50
)

// Client issues requests against one base URL + bearer token pair. It holds
// no mutable state; construct a fresh one whenever settings change.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a client. The base URL is used as configured (default
// http://127.0.0.1:27123 or the HTTPS variant on another port).
func New(apiURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{},
		logger:  logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("vault: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Probe reports whether the host app is up and the token is accepted:
// GET on the base URL must return JSON with status "OK" or an
// authenticated flag.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var status struct {
		Status        string `json:"status"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Status == "OK" || status.Authenticated
}

// Create writes a new markdown file at the vault-relative path.
func (c *Client) Create(ctx context.Context, path, content string) error {
	return c.putOrPost(ctx, http.MethodPost, path, []byte(content), "text/markdown")
}

// Update replaces the file at the vault-relative path.
func (c *Client) Update(ctx context.Context, path, content string) error {
	return c.putOrPost(ctx, http.MethodPut, path, []byte(content), "text/markdown")
}

// CreateBinary writes raw bytes (attachments) at the vault-relative path.
func (c *Client) CreateBinary(ctx context.Context, path string, data []byte, contentType string) error {
	return c.putOrPost(ctx, http.MethodPut, path, data, contentType)
}

func (c *Client) putOrPost(ctx context.Context, method, path string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, "/vault/"+escapePath(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("vault: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("vault: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}

// Delete removes the file at the vault-relative path.
func (c *Client) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, "/vault/"+escapePath(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("vault: delete %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("vault: delete %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// Read fetches a vault file and parses its frontmatter block. Any non-2xx
// response or missing frontmatter is reported as (nil, nil): "not found" is
// an expected outcome, not an error to propagate.
func (c *Client) Read(ctx context.Context, path string) (*models.RemoteCard, error) {
	ctx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/vault/"+escapePath(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/markdown")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}

	fields, body := frontmatter.Split(string(raw))
	if fields == nil {
		return nil, nil
	}

	filename := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		filename = path[i+1:]
	}
	return &models.RemoteCard{
		Path:        path,
		Filename:    filename,
		SourceURL:   fields["source_url"],
		SourceTitle: fields["source_title"],
		Created:     fields["created"],
		Content:     body,
		RawContent:  string(raw),
	}, nil
}

// ListFolders walks the vault breadth-first and returns every directory path
// (trailing slash stripped), sorted. The traversal is bounded by
// maxFolderRequests; a failed fetch for one directory is skipped.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	folders := map[string]struct{}{"/": {}}
	queue := []string{"/"}
	requests := 0

	for len(queue) > 0 && requests < maxFolderRequests {
		dir := queue[0]
		queue = queue[1:]
		requests++

		entries, err := c.listDir(ctx, dir)
		if err != nil {
			c.logger.Debug("vault: folder listing skipped",
				slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		for _, name := range entries {
			if !strings.HasSuffix(name, "/") {
				continue
			}
			full := name
			if dir != "/" {
				full = dir + name
			}
			folders[strings.TrimSuffix(full, "/")] = struct{}{}
			queue = append(queue, full)
		}
	}

	out := make([]string, 0, len(folders))
	for f := range folders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Client) listDir(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	endpoint := "/vault/"
	if dir != "/" {
		endpoint = "/vault/" + escapePath(strings.TrimSuffix(dir, "/")) + "/"
	}

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var listing struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	return listing.Files, nil
}

// SearchByID locates the vault note embedding the given card id. A search
// timeout is an expected outcome (indexes lag behind writes) and yields
// (nil, nil) with a debug log.
func (c *Client) SearchByID(ctx context.Context, id string) (*models.RemoteCard, error) {
	hits, err := c.searchSimple(ctx, id)
	if err != nil {
		return nil, nil
	}
	for _, hit := range hits {
		card, _ := c.Read(ctx, hit)
		if card != nil && strings.Contains(card.RawContent, id) {
			return card, nil
		}
	}
	return nil, nil
}

// SearchByURL returns every vault note captured from the given page,
// newest-created-first.
func (c *Client) SearchByURL(ctx context.Context, sourceURL string) ([]models.RemoteCard, error) {
	hits, err := c.searchSimple(ctx, fmt.Sprintf("source_url: %q", sourceURL))
	if err != nil {
		return nil, nil
	}

	var out []models.RemoteCard
	for _, hit := range hits {
		card, _ := c.Read(ctx, hit)
		if card != nil && card.SourceURL == sourceURL {
			out = append(out, *card)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created > out[j].Created
	})
	return out, nil
}

// searchSimple posts a query to the search endpoint and returns hit filenames.
func (c *Client) searchSimple(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"query":         query,
		"contextLength": 0,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/search/simple/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Debug("vault: search skipped", slog.String("error", err.Error()))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("vault: search failed", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("vault: search: status %d", resp.StatusCode)
	}

	var results []struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Filename)
	}
	return out, nil
}

// escapePath URL-escapes a vault-relative path per segment, keeping the
// separators intact.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
