// Package mcp_tools exposes tab sessions and the privacy analyzers as MCP tools.
package mcp_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/cookie"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/logging"
	"github.com/vphpersson/web_request_privacy/pkg/pii"
	"github.com/vphpersson/web_request_privacy/pkg/score"
	"github.com/vphpersson/web_request_privacy/pkg/types"
	"go.uber.org/zap"
)

const (
	ToolListTabs        = "list_tabs"
	ToolGetTabSession   = "get_tab_session"
	ToolPrivacyScore    = "privacy_score"
	ToolScanPii         = "scan_pii"
	ToolClassifyCookies = "classify_cookies"
)

type Tools struct {
	engine   *aggregator.Engine
	detector *pii.Detector
	logger   *zap.Logger
}

func New(engine *aggregator.Engine, detector *pii.Detector, logger *zap.Logger) *Tools {
	if detector == nil {
		detector = pii.NewDetector(pii.DefaultMaxScanBytes)
	}
	return &Tools{engine: engine, detector: detector, logger: logging.OrNop(logger)}
}

type tabRequest struct {
	TabId *int `json:"tabId"`
}

type scanPiiRequest struct {
	Text     string       `json:"text"`
	Location pii.Location `json:"location"`
}

type classifyCookiesRequest struct {
	Cookie    string   `json:"cookie"`
	SetCookie []string `json:"setCookie"`
}

type handler func(ctx context.Context, arguments json.RawMessage) (any, error)

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var tabIdSchema = map[string]any{
	"tabId": map[string]any{"type": "integer", "description": "Browser tab id", "minimum": 0},
}

func errorResult(err error) *mcp.CallToolResult {
	var result mcp.CallToolResult
	result.SetError(err)
	return &result
}

func (tools *Tools) add(server *mcp.Server, tool *mcp.Tool, handle handler) {
	server.AddTool(tool, func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, err := handle(ctx, request.Params.Arguments)
		if err != nil {
			tools.logger.Debug("Tool call failed.", zap.String("tool", tool.Name), zap.Error(err))
			return errorResult(fmt.Errorf("%s: %w", tool.Name, err)), nil
		}

		data, err := json.Marshal(value)
		if err != nil {
			return errorResult(fmt.Errorf("json marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
}

func decode[T any](arguments json.RawMessage) (*T, error) {
	var request T
	if len(arguments) == 0 {
		return &request, nil
	}
	if err := json.Unmarshal(arguments, &request); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return &request, nil
}

func decodeTabId(arguments json.RawMessage) (int, error) {
	request, err := decode[tabRequest](arguments)
	if err != nil {
		return 0, err
	}
	if request.TabId == nil {
		return 0, webRequestPrivacyErrors.ErrMissingTabId
	}
	if *request.TabId < 0 {
		return 0, fmt.Errorf("%w: %d", webRequestPrivacyErrors.ErrInvalidTabId, *request.TabId)
	}
	return *request.TabId, nil
}

// Register adds every tool to server.
func (tools *Tools) Register(server *mcp.Server) {
	tools.add(
		server,
		&mcp.Tool{
			Name:        ToolListTabs,
			Description: "List the ids of the browser tabs that have a request session.",
			InputSchema: inputSchema(map[string]any{}, nil),
		},
		tools.listTabs,
	)
	tools.add(
		server,
		&mcp.Tool{
			Name:        ToolGetTabSession,
			Description: "Return the page URL, observed requests and statistics of a browser tab.",
			InputSchema: inputSchema(tabIdSchema, []string{"tabId"}),
		},
		tools.getTabSession,
	)
	tools.add(
		server,
		&mcp.Tool{
			Name:        ToolPrivacyScore,
			Description: "Compute the 0-100 privacy score, letter grade and issues of a browser tab.",
			InputSchema: inputSchema(tabIdSchema, []string{"tabId"}),
		},
		tools.privacyScore,
	)
	tools.add(
		server,
		&mcp.Tool{
			Name:        ToolScanPii,
			Description: "Scan free text for personally identifiable information and return masked matches.",
			InputSchema: inputSchema(map[string]any{
				"text": map[string]any{"type": "string", "description": "Text to scan"},
				"location": map[string]any{
					"type":        "string",
					"enum":        []string{string(pii.LocationRequest), string(pii.LocationResponse), string(pii.LocationUrl)},
					"description": "Where the text was observed",
				},
			}, []string{"text"}),
		},
		tools.scanPii,
	)
	tools.add(
		server,
		&mcp.Tool{
			Name:        ToolClassifyCookies,
			Description: "Classify the cookies of a Cookie header and of Set-Cookie header values by purpose and risk.",
			InputSchema: inputSchema(map[string]any{
				"cookie": map[string]any{"type": "string", "description": "Cookie request header value"},
				"setCookie": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Set-Cookie response header values",
				},
			}, nil),
		},
		tools.classifyCookies,
	)
}

func (tools *Tools) listTabs(ctx context.Context, _ json.RawMessage) (any, error) {
	tabIds, err := tools.engine.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tabIds": tabIds}, nil
}

func (tools *Tools) getTabSession(ctx context.Context, arguments json.RawMessage) (any, error) {
	tabId, err := decodeTabId(arguments)
	if err != nil {
		return nil, err
	}

	snapshot, found, err := tools.engine.Snapshot(ctx, tabId)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", webRequestPrivacyErrors.ErrUnknownSession, tabId)
	}
	return snapshot, nil
}

func (tools *Tools) privacyScore(ctx context.Context, arguments json.RawMessage) (any, error) {
	tabId, err := decodeTabId(arguments)
	if err != nil {
		return nil, err
	}

	snapshot, _, err := tools.engine.Snapshot(ctx, tabId)
	if err != nil {
		return nil, err
	}
	return score.Calculate(snapshot.Stats), nil
}

func (tools *Tools) scanPii(_ context.Context, arguments json.RawMessage) (any, error) {
	request, err := decode[scanPiiRequest](arguments)
	if err != nil {
		return nil, err
	}
	location := request.Location
	if location == "" {
		location = pii.LocationRequest
	}
	return tools.detector.Scan(pii.Input{Text: request.Text, Location: location}), nil
}

func (tools *Tools) classifyCookies(_ context.Context, arguments json.RawMessage) (any, error) {
	request, err := decode[classifyCookiesRequest](arguments)
	if err != nil {
		return nil, err
	}

	var requestHeaders []*types.Header
	if request.Cookie != "" {
		requestHeaders = append(requestHeaders, &types.Header{Name: "Cookie", Value: request.Cookie})
	}
	var responseHeaders []*types.Header
	for _, value := range request.SetCookie {
		responseHeaders = append(responseHeaders, &types.Header{Name: "Set-Cookie", Value: value})
	}
	return cookie.Analyze(requestHeaders, responseHeaders), nil
}
