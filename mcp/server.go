// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcp exposes event search as Model Context Protocol tools.
//
// The server offers search_events for hybrid semantic and metadata
// queries, list_filter_options for the distinct filter values in the
// index, and index_status for the collection's state. It is served over
// stdio for desktop assistants and editors.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/search"
)

// Tool names.
const (
	ToolSearchEvents      = "search_events"
	ToolListFilterOptions = "list_filter_options"
	ToolIndexStatus       = "index_status"
)

// MaxLimit caps the number of results a tool call may request.
const MaxLimit = 100

// Backend is the retrieval surface the tools call. *eventscout.Database
// satisfies it.
type Backend interface {
	Search(ctx context.Context, req search.Request) ([]core.SearchResult, error)
	FilterOptions(ctx context.Context) (core.FilterOptions, error)
	Status(ctx context.Context) (core.CollectionStatus, error)
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Backend Backend
	Version string // version string for MCP server info
	Logger  *slog.Logger
}

// NewServer creates a configured MCP server with all event tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	s := server.NewMCPServer(
		"eventscout",
		ver,
		server.WithToolCapabilities(false),
	)

	registerSearchTool(s, cfg.Backend, logger)
	registerFilterOptionsTool(s, cfg.Backend, logger)
	registerStatusTool(s, cfg.Backend, logger)

	return s
}

// Serve runs srv over the given streams until ctx is cancelled or in closes.
func Serve(ctx context.Context, srv *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(srv).Listen(ctx, in, out)
}

func registerSearchTool(s *server.MCPServer, backend Backend, logger *slog.Logger) {
	tool := mcp.NewTool(ToolSearchEvents,
		mcp.WithDescription("Search conference events (papers, posters, orals, workshops) by meaning and filter them by metadata. "+
			"Use query \"*\" or leave it empty to browse by filters only."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Description("Natural-language query. Empty or \"*\" browses without semantic ranking."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", search.DefaultLimit, MaxLimit)),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Maximum cosine distance for semantic results, for example 0.6. Ignored when browsing."),
		),
		mcp.WithObject("filters",
			mcp.Description("Exact metadata filters. Keys: affiliation, author, session, day, ampm. "+
				"Each value is a string or a list of strings; list entries are OR-ed, keys are AND-ed. "+
				"day accepts YYYY-MM-DD with an optional AM or PM suffix."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request, err := parseSearchRequest(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
		}

		results, err := backend.Search(ctx, request)
		if err != nil {
			logger.Warn("search failed", "query", request.Query, "err", err)
			return mcp.NewToolResultError(describeError("search error", err)), nil
		}
		if results == nil {
			results = []core.SearchResult{}
		}

		data, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func parseSearchRequest(req mcp.CallToolRequest) (search.Request, error) {
	var request search.Request

	if query, err := req.RequireString("query"); err == nil {
		request.Query = query
	}

	if limitVal, err := req.RequireFloat("limit"); err == nil {
		limit := int(limitVal)
		if limit < 0 {
			return request, fmt.Errorf("%w: limit must not be negative", core.ErrInvalidRequest)
		}
		request.Limit = min(limit, MaxLimit)
	}

	if threshold, err := req.RequireFloat("threshold"); err == nil {
		request.Threshold = &threshold
	}

	if raw, ok := req.GetArguments()["filters"]; ok && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return request, fmt.Errorf("%w: filters must be an object", core.ErrInvalidFilter)
		}
		filters, err := search.ParseFilters(obj)
		if err != nil {
			return request, err
		}
		request.Filters = filters
	}
	return request, nil
}

func registerFilterOptionsTool(s *server.MCPServer, backend Backend, logger *slog.Logger) {
	tool := mcp.NewTool(ToolListFilterOptions,
		mcp.WithDescription("List the distinct affiliations, authors, sessions, days and AM/PM values that search_events filters accept."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts, err := backend.FilterOptions(ctx)
		if err != nil {
			logger.Warn("loading filter options failed", "err", err)
			return mcp.NewToolResultError(describeError("filter options error", err)), nil
		}

		data, _ := json.MarshalIndent(opts, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatusTool(s *server.MCPServer, backend Backend, logger *slog.Logger) {
	tool := mcp.NewTool(ToolIndexStatus,
		mcp.WithDescription("Report whether the event index has been built and how many events it holds."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := backend.Status(ctx)
		if err != nil {
			logger.Warn("index status failed", "err", err)
			return mcp.NewToolResultError(describeError("status error", err)), nil
		}

		data, _ := json.MarshalIndent(status, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// describeError turns known failures into actionable messages.
func describeError(prefix string, err error) string {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		return "index not initialized: run the ingest command first"
	case errors.Is(err, core.ErrInvalidFilter), errors.Is(err, core.ErrInvalidRequest):
		return fmt.Sprintf("invalid request: %v", err)
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}
