package mcp_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/cookie"
	"github.com/vphpersson/web_request_privacy/pkg/pii"
	"github.com/vphpersson/web_request_privacy/pkg/score"
	"github.com/vphpersson/web_request_privacy/pkg/types"
)

var testImplementation = &mcp.Implementation{Name: "web-request-privacy-test", Version: "0.1.0"}

func session(t *testing.T) (*aggregator.Engine, *mcp.ClientSession) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	engine := aggregator.NewEngine(nil, nil, zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()

	server := mcp.NewServer(testImplementation, nil)
	New(engine, nil, zap.NewNop()).Register(server)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() { _ = server.Run(ctx, serverTransport) }()

	client := mcp.NewClient(testImplementation, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = clientSession.Close()
		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})
	return engine, clientSession
}

func call(t *testing.T, clientSession *mcp.ClientSession, name string, arguments any) *mcp.CallToolResult {
	t.Helper()

	result, err := clientSession.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: arguments})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	textContent, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return textContent.Text
}

func callJSON(t *testing.T, clientSession *mcp.ClientSession, name string, arguments any, v any) {
	t.Helper()

	result := call(t, clientSession, name, arguments)
	require.False(t, result.IsError, text(t, result))
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), v))
}

func populate(t *testing.T, engine *aggregator.Engine) {
	t.Helper()

	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, engine.PanelNavigated(ctx, 5, "https://blog.example.com/"))
	require.NoError(t, engine.IngestExisting(ctx, 5, []aggregator.FinishedRequest{
		{Id: "a", Url: "https://blog.example.com/", Method: "GET", Type: types.ResourceTypeDocument, Status: 200, StartTime: start},
		{Id: "b", Url: "https://connect.facebook.net/en_US/fbevents.js", Method: "GET", Type: types.ResourceTypeScript, Status: 200, StartTime: start},
	}))
}

func TestListTools(t *testing.T) {
	_, clientSession := session(t)

	result, err := clientSession.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(
		t,
		[]string{ToolListTabs, ToolGetTabSession, ToolPrivacyScore, ToolScanPii, ToolClassifyCookies},
		names,
	)
}

func TestTabTools(t *testing.T) {
	engine, clientSession := session(t)
	populate(t, engine)

	var tabs struct {
		TabIds []int `json:"tabIds"`
	}
	callJSON(t, clientSession, ToolListTabs, map[string]any{}, &tabs)
	assert.Equal(t, []int{5}, tabs.TabIds)

	var snapshot types.TabSnapshot
	callJSON(t, clientSession, ToolGetTabSession, map[string]any{"tabId": 5}, &snapshot)
	assert.Equal(t, "example.com", snapshot.PageDomain)
	assert.Len(t, snapshot.Records, 2)
	assert.Equal(t, 1, snapshot.Stats.ThirdPartyCount)

	var result score.Result
	callJSON(t, clientSession, ToolPrivacyScore, map[string]any{"tabId": 5}, &result)
	assert.Less(t, result.Score, 100)
	assert.NotEmpty(t, result.Issues)
}

func TestTabToolErrors(t *testing.T) {
	_, clientSession := session(t)

	result := call(t, clientSession, ToolGetTabSession, map[string]any{"tabId": 99})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "unknown tab session")

	result = call(t, clientSession, ToolPrivacyScore, map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "missing tab id")
}

func TestScanPii(t *testing.T) {
	_, clientSession := session(t)

	var result pii.Result
	callJSON(t, clientSession, ToolScanPii, map[string]any{"text": "email=jane.doe@example.org"}, &result)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, pii.TypeEmail, result.Matches[0].Type)
	assert.Equal(t, pii.LocationRequest, result.Matches[0].Location)
	assert.NotEqual(t, "jane.doe@example.org", result.Matches[0].Value)
}

func TestClassifyCookies(t *testing.T) {
	_, clientSession := session(t)

	var report cookie.Report
	callJSON(
		t,
		clientSession,
		ToolClassifyCookies,
		map[string]any{"cookie": "_ga=GA1.2.3", "setCookie": []string{"sessionid=abc; HttpOnly; Secure"}},
		&report,
	)
	require.Len(t, report.RequestCookies, 1)
	assert.Equal(t, cookie.CategoryAnalytics, report.RequestCookies[0].Explanation.Category)
	require.Len(t, report.ResponseCookies, 1)
	assert.True(t, report.ResponseCookies[0].HttpOnly)
	assert.Equal(t, cookie.CategoryEssential, report.ResponseCookies[0].Explanation.Category)
}
