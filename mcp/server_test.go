package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend records the last search request and returns canned values.
type stubBackend struct {
	lastRequest search.Request
	results     []core.SearchResult
	options     core.FilterOptions
	status      core.CollectionStatus
	err         error
}

func (b *stubBackend) Search(_ context.Context, req search.Request) ([]core.SearchResult, error) {
	b.lastRequest = req
	return b.results, b.err
}

func (b *stubBackend) FilterOptions(_ context.Context) (core.FilterOptions, error) {
	return b.options, b.err
}

func (b *stubBackend) Status(_ context.Context) (core.CollectionStatus, error) {
	return b.status, b.err
}

// callTool invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	}))

	// Parse the JSON-RPC response
	respBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &resp), "raw: %s", string(respBytes))
	require.Nil(t, resp.Error, "JSON-RPC error")
	require.NotEmpty(t, resp.Result.Content, "no content in result")
	assert.Equal(t, "text", resp.Result.Content[0].Type)

	return resp.Result.Content[0].Text, resp.Result.IsError
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerConfig{Backend: &stubBackend{}})
	require.NotNil(t, srv)

	resp := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	}))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var list struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &list))

	var names []string
	for _, tool := range list.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchEvents, ToolListFilterOptions, ToolIndexStatus}, names)
}

func TestSearchTool(t *testing.T) {
	backend := &stubBackend{
		results: []core.SearchResult{
			{ID: "1", Title: "Graph Transformers", Distance: 0.12},
		},
	}
	srv := NewServer(ServerConfig{Backend: backend})

	t.Run("passes query, limit, threshold and filters", func(t *testing.T) {
		text, isErr := callTool(t, srv, ToolSearchEvents, map[string]any{
			"query":     "graph learning",
			"limit":     3,
			"threshold": 0.6,
			"filters": map[string]any{
				"affiliation": []any{"MIT", "Stanford"},
				"day":         "2025-12-03 AM",
			},
		})
		require.False(t, isErr, text)

		var results []core.SearchResult
		require.NoError(t, json.Unmarshal([]byte(text), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "Graph Transformers", results[0].Title)

		req := backend.lastRequest
		assert.Equal(t, "graph learning", req.Query)
		assert.Equal(t, 3, req.Limit)
		require.NotNil(t, req.Threshold)
		assert.InDelta(t, 0.6, *req.Threshold, 1e-9)
		assert.Equal(t, []string{"MIT", "Stanford"}, req.Filters.Affiliation.Values())
		assert.Equal(t, []string{"2025-12-03 AM"}, req.Filters.Day.Values())
	})

	t.Run("limit is capped", func(t *testing.T) {
		_, isErr := callTool(t, srv, ToolSearchEvents, map[string]any{"query": "*", "limit": 5000})
		require.False(t, isErr)
		assert.Equal(t, MaxLimit, backend.lastRequest.Limit)
		assert.Nil(t, backend.lastRequest.Threshold)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		empty := NewServer(ServerConfig{Backend: &stubBackend{}})
		text, isErr := callTool(t, empty, ToolSearchEvents, map[string]any{})
		require.False(t, isErr)
		assert.Equal(t, "[]", strings.TrimSpace(text))
	})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"negative limit", map[string]any{"limit": -1}},
		{"unknown filter key", map[string]any{"filters": map[string]any{"venue": "x"}}},
		{"non-string filter value", map[string]any{"filters": map[string]any{"session": 3}}},
		{"filters not an object", map[string]any{"filters": "MIT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, srv, ToolSearchEvents, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, "invalid request")
		})
	}
}

func TestSearchTool_BackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not initialized", core.ErrNotInitialized, "run the ingest command"},
		{"invalid request", core.ErrInvalidRequest, "invalid request"},
		{"other", errors.New("disk on fire"), "search error: disk on fire"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(ServerConfig{Backend: &stubBackend{err: tt.err}})
			text, isErr := callTool(t, srv, ToolSearchEvents, map[string]any{"query": "graphs"})
			assert.True(t, isErr)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestListFilterOptionsTool(t *testing.T) {
	backend := &stubBackend{options: core.FilterOptions{
		Affiliations: []string{"MIT"},
		Authors:      []string{"Ada Lovelace"},
		Sessions:     []string{"Oral Session 1"},
		Days:         []string{"2025-12-03"},
		AMPM:         []string{"AM", "PM"},
	}}
	srv := NewServer(ServerConfig{Backend: backend})

	text, isErr := callTool(t, srv, ToolListFilterOptions, nil)
	require.False(t, isErr, text)

	var opts core.FilterOptions
	require.NoError(t, json.Unmarshal([]byte(text), &opts))
	assert.Equal(t, backend.options, opts)
}

func TestIndexStatusTool(t *testing.T) {
	backend := &stubBackend{status: core.CollectionStatus{Name: "neurips_papers", Exists: true, Count: 42}}
	srv := NewServer(ServerConfig{Backend: backend, Version: "1.2.3"})

	text, isErr := callTool(t, srv, ToolIndexStatus, nil)
	require.False(t, isErr, text)

	var status core.CollectionStatus
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.Equal(t, backend.status, status)

	failing := NewServer(ServerConfig{Backend: &stubBackend{err: errors.New("closed")}})
	text, isErr = callTool(t, failing, ToolIndexStatus, nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "status error: closed")
}
