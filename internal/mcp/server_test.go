package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/testutil"
)

// fakeService returns canned results so protocol tests exercise the wire
// shape without a store behind them.
type fakeService struct {
	resolveErr error
}

func (f *fakeService) Resolve(_ context.Context, name string) (*docs.ResolveResult, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if name == "react" {
		return &docs.ResolveResult{
			Query: name,
			Matches: []docs.LibraryMatch{{
				Identifier:    "/facebook/react",
				Name:          "React",
				TrustScore:    9,
				LatestVersion: "v18.2.0",
			}},
		}, nil
	}
	return &docs.ResolveResult{
		Query:     name,
		ErrorCode: docs.CodeLibraryNotFound,
		Message:   "no library matches",
	}, nil
}

func (f *fakeService) GetDocs(_ context.Context, libraryID, topic string, tokens int) (*docs.DocsResult, error) {
	return &docs.DocsResult{
		LibraryID:    libraryID,
		Version:      "v18.2.0",
		Topic:        topic,
		Content:      "## 1. Using the State Hook\n\nuseState returns a stateful value.",
		ResultCount:  1,
		ApproxTokens: 16,
	}, nil
}

func (f *fakeService) ListVersions(_ context.Context, libraryID string) (*docs.VersionsResult, error) {
	return &docs.VersionsResult{
		LibraryID: libraryID,
		Versions:  []docs.VersionInfo{{Version: "v18.2.0", IsLatest: true, DocumentCount: 42}},
	}, nil
}

func (f *fakeService) Search(_ context.Context, query string, _ docs.SearchFilters, _ int) (*docs.SearchResults, error) {
	return &docs.SearchResults{
		Query: query,
		Total: 1,
		Results: []docs.SearchHit{{
			Title: "Using the State Hook", Excerpt: "useState returns...", Score: 0.91,
		}},
	}, nil
}

// connectServer wires a server and an SDK client over in-memory transports
// and returns the client session. Both sessions close via t.Cleanup.
func connectServer(t *testing.T, service DocsService) *sdk.ClientSession {
	t.Helper()

	server, err := NewServer(Config{Name: "docdex", Version: "test"}, service, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textContent(t *testing.T, result *sdk.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(result.Content))
	}
	text, ok := result.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *sdk.TextContent", result.Content[0])
	}
	return text.Text
}

func TestNewServer_Validation(t *testing.T) {
	logger := testutil.DiscardLogger()

	if _, err := NewServer(Config{Version: "1"}, &fakeService{}, logger); err == nil {
		t.Error("missing name should fail")
	}
	if _, err := NewServer(Config{Name: "docdex"}, &fakeService{}, logger); err == nil {
		t.Error("missing version should fail")
	}
	if _, err := NewServer(Config{Name: "docdex", Version: "1"}, nil, logger); err == nil {
		t.Error("missing service should fail")
	}
}

func TestProtocol_ListTools(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		if tool.Description == "" {
			t.Errorf("tool %q has empty description", tool.Name)
		}
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	wantNames := []string{
		"get-library-docs",
		"get-library-versions",
		"resolve-library-id",
		"search-documentation",
	}
	if len(names) != len(wantNames) {
		t.Fatalf("got %d tools %v, want %v", len(names), names, wantNames)
	}
	for i, got := range names {
		if got != wantNames[i] {
			t.Errorf("tool[%d] = %q, want %q", i, got, wantNames[i])
		}
	}
}

func TestProtocol_ResolveLibraryID(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "resolve-library-id",
		Arguments: map[string]any{"libraryName": "react"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true for a successful resolve: %s", textContent(t, result))
	}

	var payload docs.ResolveResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if len(payload.Matches) != 1 || payload.Matches[0].Identifier != "/facebook/react" {
		t.Errorf("unexpected matches: %+v", payload.Matches)
	}
}

func TestProtocol_ResolveLibraryID_Miss(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "resolve-library-id",
		Arguments: map[string]any{"libraryName": "no-such-library"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("domain miss should set IsError")
	}

	var payload docs.ResolveResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.ErrorCode != docs.CodeLibraryNotFound {
		t.Errorf("ErrorCode = %q, want %q", payload.ErrorCode, docs.CodeLibraryNotFound)
	}
}

func TestProtocol_ResolveLibraryID_InternalError(t *testing.T) {
	session := connectServer(t, &fakeService{resolveErr: errors.New("connection refused")})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "resolve-library-id",
		Arguments: map[string]any{"libraryName": "react"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("infrastructure failure should set IsError")
	}

	text := textContent(t, result)
	var payload map[string]string
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload["errorCode"] != docs.CodeInternalError {
		t.Errorf("errorCode = %q, want %q", payload["errorCode"], docs.CodeInternalError)
	}
	if strings.Contains(text, "connection refused") {
		t.Errorf("payload leaks the internal cause: %s", text)
	}
}

func TestProtocol_GetLibraryDocs(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name: "get-library-docs",
		Arguments: map[string]any{
			"libraryId": "/facebook/react",
			"topic":     "hooks",
			"tokens":    2000,
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	var payload docs.DocsResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.Version != "v18.2.0" {
		t.Errorf("Version = %q", payload.Version)
	}
	if !strings.Contains(payload.Content, "Using the State Hook") {
		t.Errorf("unexpected content: %q", payload.Content)
	}
}

func TestProtocol_SearchDocumentation(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "search-documentation",
		Arguments: map[string]any{"query": "useState"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	var payload docs.SearchResults
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if payload.Total != 1 {
		t.Errorf("Total = %d, want 1", payload.Total)
	}
}

func TestProtocol_GetLibraryVersions(t *testing.T) {
	session := connectServer(t, &fakeService{})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      "get-library-versions",
		Arguments: map[string]any{"libraryId": "/facebook/react"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	var payload docs.VersionsResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if len(payload.Versions) != 1 || !payload.Versions[0].IsLatest {
		t.Errorf("unexpected versions: %+v", payload.Versions)
	}
}

func TestJSONResult_MarshalsPayload(t *testing.T) {
	result := jsonResult(map[string]any{"total": 2}, false)
	if result.IsError {
		t.Error("IsError should be false")
	}
	if got := result.Content[0].(*sdk.TextContent).Text; got != `{"total":2}` {
		t.Errorf("text = %q", got)
	}

	result = jsonResult(map[string]any{"errorCode": "library-not-found"}, true)
	if !result.IsError {
		t.Error("IsError should be true for a domain miss")
	}
}
