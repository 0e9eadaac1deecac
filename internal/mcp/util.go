package mcp

import (
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docdex/docdex/internal/docs"
)

// jsonResult marshals a structured result into a single text content block.
// isError marks domain misses so clients can branch without parsing; the
// payload always carries the full structured result either way.
func jsonResult(data any, isError bool) *sdk.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(b)}},
		IsError: isError,
	}
}

// internalError is the structured payload for infrastructure failures. The
// cause stays in the server logs; clients only see the error code.
func internalError() *sdk.CallToolResult {
	return jsonResult(map[string]string{
		"errorCode": docs.CodeInternalError,
		"message":   "internal error, see server logs",
	}, true)
}
