package web_request_feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
)

type recordingSink struct {
	commands []aggregator.Command
}

func (sink *recordingSink) record(command aggregator.Command) error {
	sink.commands = append(sink.commands, command)
	return nil
}

func (sink *recordingSink) Begin(_ context.Context, event aggregator.BeginEvent) error {
	return sink.record(event)
}

func (sink *recordingSink) RequestHeaders(_ context.Context, event aggregator.RequestHeadersEvent) error {
	return sink.record(event)
}

func (sink *recordingSink) ResponseHeaders(_ context.Context, event aggregator.ResponseHeadersEvent) error {
	return sink.record(event)
}

func (sink *recordingSink) Completed(_ context.Context, event aggregator.CompletedEvent) error {
	return sink.record(event)
}

func (sink *recordingSink) TabNavigated(_ context.Context, event aggregator.TabNavigatedEvent) error {
	return sink.record(event)
}

func (sink *recordingSink) TabClosed(_ context.Context, event aggregator.TabClosedEvent) error {
	return sink.record(event)
}

func TestResourceType(t *testing.T) {
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeDocument, ResourceType("main_frame"))
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeXhr, ResourceType("xmlhttprequest"))
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypePing, ResourceType("beacon"))
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeOther, ResourceType("csp_report"))
}

func TestTimestamp(t *testing.T) {
	assert.True(t, Timestamp(0).IsZero())
	assert.Equal(t, time.UnixMilli(1714564800123).UnixMicro(), Timestamp(1714564800123).UnixMicro())
	assert.Equal(t, int64(500), Timestamp(1714564800123.5).UnixMicro()%1000)
}

func TestRequestBodyText(t *testing.T) {
	assert.Nil(t, RequestBodyText(nil))
	assert.Nil(t, RequestBodyText(&webRequestPrivacyTypes.RequestBody{Error: "Unknown error"}))

	form := RequestBodyText(&webRequestPrivacyTypes.RequestBody{
		FormData: map[string][]string{"email": {"jane@example.com"}, "a": {"1"}},
	})
	require.NotNil(t, form)
	assert.Equal(t, "a=1&email=jane%40example.com", *form)

	raw := RequestBodyText(&webRequestPrivacyTypes.RequestBody{
		Raw: []*webRequestPrivacyTypes.UploadData{{Bytes: `{"a":`}, nil, {Bytes: `1}`}},
	})
	require.NotNil(t, raw)
	assert.Equal(t, `{"a":1}`, *raw)
}

func TestDecode(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  aggregator.Command
	}{
		{
			name:  "before request",
			input: `{"event":"onBeforeRequest","details":{"requestId":"7","url":"https://example.com/","method":"GET","type":"main_frame","tabId":3,"timeStamp":1714564800000}}`,
			want: aggregator.BeginEvent{
				RequestId: "7",
				Url:       "https://example.com/",
				Method:    "GET",
				Type:      webRequestPrivacyTypes.ResourceTypeDocument,
				TabId:     3,
				Timestamp: time.UnixMilli(1714564800000),
			},
		},
		{
			name:  "send headers",
			input: `{"event":"onSendHeaders","details":{"requestId":"7","tabId":3,"requestHeaders":[{"name":"Cookie","value":"sid=1"}]}}`,
			want: aggregator.RequestHeadersEvent{
				RequestId: "7",
				TabId:     3,
				Headers:   []*webRequestPrivacyTypes.Header{{Name: "Cookie", Value: "sid=1"}},
			},
		},
		{
			name:  "headers received",
			input: `{"event":"onHeadersReceived","details":{"requestId":"7","tabId":3,"statusLine":"HTTP/1.1 200 OK","ip":"93.184.216.34","responseHeaders":[{"name":"Content-Type","value":"text/html"}]}}`,
			want: aggregator.ResponseHeadersEvent{
				RequestId:   "7",
				TabId:       3,
				Headers:     []*webRequestPrivacyTypes.Header{{Name: "Content-Type", Value: "text/html"}},
				HttpVersion: "1.1",
				ServerIp:    "93.184.216.34",
			},
		},
		{
			name:  "completed",
			input: `{"event":"onCompleted","details":{"requestId":"7","tabId":3,"statusCode":200,"timeStamp":1714564800250}}`,
			want: aggregator.CompletedEvent{
				RequestId:  "7",
				TabId:      3,
				StatusCode: 200,
				Timestamp:  time.UnixMilli(1714564800250),
			},
		},
		{
			name:  "error occurred",
			input: `{"event":"onErrorOccurred","details":{"requestId":"8","tabId":3,"statusCode":200,"error":"net::ERR_BLOCKED_BY_CLIENT"}}`,
			want:  aggregator.CompletedEvent{RequestId: "8", TabId: 3},
		},
		{
			name:  "tab navigated",
			input: `{"event":"tabNavigated","details":{"tabId":3,"url":"https://example.org/"}}`,
			want:  aggregator.TabNavigatedEvent{TabId: 3, Url: "https://example.org/"},
		},
		{
			name:  "tab removed",
			input: `{"event":"tabRemoved","details":{"tabId":3}}`,
			want:  aggregator.TabClosedEvent{TabId: 3},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			command, err := Decode([]byte(testCase.input))
			require.NoError(t, err)
			if diff := cmp.Diff(testCase.want, command); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"event":"onAuthRequired","details":{}}`))
	assert.ErrorIs(t, err, webRequestPrivacyErrors.ErrUnknownEvent)

	_, err = Decode([]byte(`{"event":"onCompleted"}`))
	assert.ErrorIs(t, err, webRequestPrivacyErrors.ErrNilDetails)

	_, err = Decode([]byte(`{"event":"onCompleted","details":null}`))
	assert.ErrorIs(t, err, webRequestPrivacyErrors.ErrNilDetails)

	_, err = Decode([]byte(`{"event":`))
	assert.Error(t, err)

	command, err := DecodeMessage(nil)
	assert.NoError(t, err)
	assert.Nil(t, command)
}

func TestReplay(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	input := strings.Join([]string{
		`{"event":"tabNavigated","details":{"tabId":1,"url":"https://example.com/"}}`,
		``,
		`{"event":"onBeforeRequest","details":{"requestId":"1","url":"https://example.com/","tabId":1}}`,
		`not json`,
		`{"event":"onCompleted","details":{"requestId":"1","tabId":1,"statusCode":200}}`,
	}, "\n")

	sink := &recordingSink{}
	dispatched, err := Replay(context.Background(), strings.NewReader(input), sink, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 3, dispatched)
	assert.Len(t, sink.commands, 3)
	assert.Equal(t, 1, logs.FilterMessage("Skipped undecodable event.").Len())
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Replay(ctx, strings.NewReader("{}\n"), &recordingSink{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayIntoEngine(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	engine := aggregator.NewEngine(nil, nil, zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	input := strings.Join([]string{
		`{"event":"tabNavigated","details":{"tabId":1,"url":"https://example.com/"}}`,
		`{"event":"onBeforeRequest","details":{"requestId":"1","url":"https://stats.g.doubleclick.net/j/collect","method":"POST","type":"xmlhttprequest","tabId":1,"timeStamp":1000}}`,
		`{"event":"onHeadersReceived","details":{"requestId":"1","tabId":1,"statusLine":"HTTP/2 200","responseHeaders":[{"name":"content-length","value":"35"}]}}`,
		`{"event":"onCompleted","details":{"requestId":"1","tabId":1,"statusCode":200,"timeStamp":1040}}`,
		`{"event":"onCompleted","details":{"requestId":"2","tabId":1,"statusCode":200,"timeStamp":1040}}`,
	}, "\n")

	dispatched, err := Replay(ctx, strings.NewReader(input), engine, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, dispatched)

	snapshot, found, err := engine.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snapshot.Records, 1)

	record := snapshot.Records[0]
	assert.True(t, record.IsTracker)
	assert.True(t, record.IsThirdParty)
	assert.Equal(t, "2", record.HttpVersion)
	assert.Equal(t, int64(35), *record.Size)
	assert.Equal(t, int64(40), *record.DurationMs)
	assert.Equal(t, webRequestPrivacyTypes.StateCompleted, record.State)
}

type unknownCommand struct{ aggregator.Command }

func TestDispatchUnknown(t *testing.T) {
	err := Dispatch(context.Background(), &recordingSink{}, unknownCommand{})
	assert.ErrorIs(t, err, webRequestPrivacyErrors.ErrUnknownCommand)
}
