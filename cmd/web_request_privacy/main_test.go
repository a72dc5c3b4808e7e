package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testArchive = `{"log":{"version":"1.2","entries":[
{"_requestId":"doc","_resourceType":"document","startedDateTime":"2024-05-01T12:00:00Z","time":30,
 "request":{"method":"GET","url":"https://shop.example.com/","headers":[{"name":"Cookie","value":"_ga=GA1.2.3"}]},
 "response":{"status":200,"headers":[],"content":{"size":30,"mimeType":"text/html","text":"mail jane.doe@example.org now"}}},
{"_requestId":"px","_resourceType":"image","startedDateTime":"2024-05-01T12:00:01Z","time":5,
 "request":{"method":"GET","url":"https://pixel.facebook.com/tr?id=1","headers":[]},
 "response":{"status":204,"headers":[],"content":{"size":0,"mimeType":"image/gif"}}}
]}}`

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	assert.Equal(t, version+"\n", execute(t, "version"))
}

func TestAnalyzeHar(t *testing.T) {
	output := execute(t, "analyze-har", "--tab-id", "3", writeFile(t, "page.har", testArchive))

	var report tabReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, 3, report.TabId)
	assert.Equal(t, "https://shop.example.com/", report.PageUrl)
	assert.Equal(t, 2, report.Stats.TotalRequests)
	assert.Equal(t, 1, report.Stats.TrackerCount)
	assert.Less(t, report.Score.Score, 100)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, "doc", report.Findings[0].RequestId)
	require.NotNil(t, report.Findings[0].Pii)
	assert.NotEmpty(t, report.Findings[0].Pii.Matches)
	assert.NotEmpty(t, report.Findings[0].Cookies)
}

func TestReplay(t *testing.T) {
	events := strings.Join([]string{
		`{"event":"tabNavigated","details":{"tabId":7,"url":"https://news.example.com/"}}`,
		`{"event":"onBeforeRequest","details":{"requestId":"1","url":"https://news.example.com/","method":"GET","type":"main_frame","tabId":7,"timeStamp":1714564800000}}`,
		`{"event":"onCompleted","details":{"requestId":"1","tabId":7,"statusCode":200,"timeStamp":1714564800020}}`,
		`{"event":"onBeforeRequest","details":{"requestId":"2","url":"https://cdn.other.org/lib.js","method":"GET","type":"script","tabId":7,"timeStamp":1714564800030}}`,
	}, "\n")
	output := execute(t, "replay", "--ecs=false", writeFile(t, "events.jsonl", events))

	var reports []*tabReport
	require.NoError(t, json.Unmarshal([]byte(output), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 7, reports[0].TabId)
	assert.Equal(t, 2, reports[0].Stats.TotalRequests)
	assert.Equal(t, 1, reports[0].Stats.ThirdPartyCount)
}

func TestReplayEcs(t *testing.T) {
	events := `{"event":"onBeforeRequest","details":{"requestId":"1","url":"https://example.com/a","method":"GET","type":"xmlhttprequest","tabId":2,"timeStamp":1714564800000}}`
	output := execute(t, "replay", "--ecs", writeFile(t, "events.jsonl", events))

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 1)
	var document map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &document))
	assert.Contains(t, document, "web_request_logging")
}
