// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes quire tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
)

const contractURI = "quire://dataobj-format"

// Server wraps the MCP server with quire tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *dataobj.Service
	bookmarks *ingest.Pipeline
}

// New creates a new MCP server with all quire tools registered.
// bookmarks may be nil, in which case add_bookmark is not offered.
func New(svc *dataobj.Service, bookmarks *ingest.Pipeline) *Server {
	s := &Server{svc: svc, bookmarks: bookmarks}

	s.mcp = server.NewMCPServer(
		"quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_dataobjs",
		mcp.WithDescription("Full-text search through notes and bookmarked pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchDataObjs)

	s.mcp.AddTool(mcp.NewTool("get_dataobj",
		mcp.WithDescription("Read a data object as stored: YAML front-matter followed by the Markdown body."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Data object id")),
	), s.getDataObj)

	s.mcp.AddTool(mcp.NewTool("list_dataobjs",
		mcp.WithDescription("List data object summaries, newest first."),
		mcp.WithString("type", mcp.Description("Optional variant: note, bookmark or external_bookmark")),
		mcp.WithString("folder", mcp.Description("Optional exact folder; use \""+models.RootFolder+"\" for the root")),
		mcp.WithString("tag", mcp.Description("Optional tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items")),
	), s.listDataObjs)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. quire assigns the id and date. "+
			"Read the format contract first via the get_dataobj_contract tool or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Markdown body")),
		mcp.WithArray("tags", mcp.Description("Tags"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("folder", mcp.Description("Existing folder; empty for the root")),
	), s.createNote)

	if bookmarks != nil {
		s.mcp.AddTool(mcp.NewTool("add_bookmark",
			mcp.WithDescription("Bookmark a web page. The page is fetched and its readable content stored as Markdown."),
			mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL")),
			mcp.WithString("title", mcp.Description("Optional title; defaults to the page title")),
			mcp.WithString("desc", mcp.Description("Optional description")),
			mcp.WithArray("tags", mcp.Description("Tags"), mcp.Items(map[string]any{"type": "string"})),
			mcp.WithString("folder", mcp.Description("Existing folder; empty for the root")),
		), s.addBookmark)
	}

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List all folders. The first entry is the root folder."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("get_dataobj_contract",
		mcp.WithDescription("Returns the quire data object format contract."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Data Object Format Contract",
			mcp.WithResourceDescription("How quire stores notes and bookmarks on disk."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchDataObjs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) getDataObj(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	data, err := parser.Encode(obj)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listDataObjs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := index.Filter{Limit: req.GetInt("limit", 0)}
	if t := req.GetString("type", ""); t != "" {
		if !models.Type(t).Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", t)), nil
		}
		f.Types = []models.Type{models.Type(t)}
	}
	args := req.GetArguments()
	if _, ok := args["folder"]; ok {
		p := models.NormalizePath(req.GetString("folder", ""))
		f.Path = &p
	}
	if tag := req.GetString("tag", ""); tag != "" {
		f.Tag = &tag
	}

	items, total, err := s.svc.GetAll(ctx, f)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no data objects found"), nil
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s\n", it.ID, it.Type, it.Title, folderLabel(it.Path))
	}
	if total > len(items) {
		fmt.Fprintf(&b, "(%d of %d)\n", len(items), total)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj := &models.DataObj{
		Type:    models.TypeNote,
		Title:   title,
		Content: req.GetString("content", ""),
		Tags:    req.GetStringSlice("tags", nil),
		Path:    req.GetString("folder", ""),
	}
	id, err := s.svc.Insert(ctx, obj)
	if err != nil && !errors.Is(err, apperr.ErrIndexInconsistency) {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", id)), nil
}

func (s *Server) addBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj, err := s.bookmarks.Add(ctx, ingest.BookmarkRequest{
		URL:   rawURL,
		Title: req.GetString("title", ""),
		Desc:  req.GetString("desc", ""),
		Tags:  req.GetStringSlice("tags", nil),
		Path:  req.GetString("folder", ""),
	})
	if obj == nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d (%s)", obj.ID, obj.Title)), nil
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dirs, err := s.svc.ListDirs(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(strings.Join(dirs, "\n")), nil
}

func (s *Server) getContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DataObjFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     DataObjFormatContract,
		},
	}, nil
}

func folderLabel(p string) string {
	if p == "" {
		return models.RootFolder
	}
	return p
}
