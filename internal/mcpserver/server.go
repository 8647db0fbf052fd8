// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz capture tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/settings"
	"github.com/starford/ansuz/internal/vault"
)

// AssetWriter is the slice of the vault client the clip_asset tool uses.
type AssetWriter interface {
	CreateBinary(ctx context.Context, path string, data []byte, contentType string) error
}

// AssetFactory builds an asset writer from the current settings.
type AssetFactory func(cfg *settings.Settings) AssetWriter

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp      *server.MCPServer
	store    *cardstore.Store
	sessions *session.Service
	rec      *reconciler.Reconciler
	assets   AssetFactory
}

// New creates a new MCP server with all Ansuz tools registered. assets may be
// nil, in which case clip_asset writes through a real vault client.
func New(store *cardstore.Store, sessions *session.Service, rec *reconciler.Reconciler, assets AssetFactory) *Server {
	if assets == nil {
		assets = func(cfg *settings.Settings) AssetWriter {
			return vault.New(cfg.APIURL, cfg.APIKey, nil)
		}
	}
	s := &Server{store: store, sessions: sessions, rec: rec, assets: assets}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_card",
		mcp.WithDescription("Capture a note card into the local draft store. "+
			"Leave content empty to seed it from the chosen template. Cards stay "+
			"local drafts until synced into the vault; read the contract first via "+
			"the get_card_contract tool or the ansuz://card-format resource."),
		mcp.WithString("title", mcp.Description("Card title (used for the vault filename)")),
		mcp.WithString("content", mcp.Description("Markdown content; empty seeds from the template")),
		mcp.WithString("template", mcp.Description("Template id (quick, bookmark, quote, idea, reading or a custom one)")),
		mcp.WithString("source_url", mcp.Description("URL of the page the card was captured from")),
		mcp.WithString("source_title", mcp.Description("Title of the source page")),
	), s.captureCard)

	s.mcp.AddTool(mcp.NewTool("read_card",
		mcp.WithDescription("Read a card from the local draft store by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
	), s.readCard)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List cards, optionally filtered by the source page URL."),
		mcp.WithString("source", mcp.Description("Optional source URL (empty for all cards)")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through local card titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("sync_cards",
		mcp.WithDescription("Upload every draft card into the Obsidian vault. "+
			"Cards that fail to upload stay drafts."),
	), s.syncCards)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the canonical Ansuz card format contract. "+
			"Call this before capturing cards to ensure correct structure."),
	), s.getCardContract)

	s.mcp.AddTool(mcp.NewTool("clip_asset",
		mcp.WithDescription("Download an image or PDF (HTTP URL or base64 data URI) "+
			"and store it in the vault's attachments folder. Returns a ready-to-paste "+
			"markdown image reference."),
		mcp.WithString("url", mcp.Required(), mcp.Description("HTTP(S) URL or data: URI of the asset")),
		mcp.WithString("filename", mcp.Description("Optional target filename; derived from the URL when empty")),
	), s.clipAsset)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://card-format", "Card Format Contract",
			mcp.WithResourceDescription("Canonical card format that captured cards follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	get := func(key string) string {
		v, _ := req.RequireString(key)
		return v
	}
	title := get("title")
	content := get("content")

	st := s.sessions.Start(get("source_url"), get("source_title"), get("template"))
	defer s.sessions.Close(st.CardID)

	if content == "" {
		if _, err := s.sessions.Seed(st.CardID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if title != "" {
			seeded, _ := s.sessions.Get(st.CardID)
			s.sessions.Update(st.CardID, title, seeded.Content)
		}
	} else {
		s.sessions.Update(st.CardID, title, content)
	}

	card, err := s.sessions.Save(ctx, st.CardID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(card, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readCard(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	card, err := s.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(card, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCards(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := ""
	if v, err := req.RequireString("source"); err == nil {
		source = v
	}
	cards, err := s.store.List(source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lines := make([]string, 0, len(cards))
	for _, c := range cards {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", c.ID, c.Status, c.Title))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no cards"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchCards(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.store.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.rec.UploadAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("uploaded: %d, failed: %d",
		len(res.Uploaded), len(res.Failed))), nil
}

func (s *Server) getCardContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
