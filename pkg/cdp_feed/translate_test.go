package cdp_feed

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
)

const wallStart = proto.TimeSinceEpoch(1714564800)

func requestWillBeSent(id string, url string) *proto.NetworkRequestWillBeSent {
	return &proto.NetworkRequestWillBeSent{
		RequestID: proto.NetworkRequestID(id),
		Request: &proto.NetworkRequest{
			URL:    url,
			Method: "POST",
			Headers: proto.NetworkHeaders{
				"User-Agent": gson.New("test"),
				"Accept":     gson.New("*/*"),
			},
			PostData: `{"email":"jane.doe@example.com"}`,
		},
		Timestamp: 100,
		WallTime:  wallStart,
		Type:      proto.NetworkResourceTypeFetch,
	}
}

func responseReceived(id string) *proto.NetworkResponseReceived {
	return &proto.NetworkResponseReceived{
		RequestID: proto.NetworkRequestID(id),
		Response: &proto.NetworkResponse{
			Status:          201,
			Headers:         proto.NetworkHeaders{"Content-Type": gson.New("application/json")},
			MIMEType:        "application/json",
			Protocol:        "h2",
			RemoteIPAddress: "[2001:db8::1]",
		},
	}
}

func TestResourceType(t *testing.T) {
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeXhr, ResourceType(proto.NetworkResourceTypeXHR))
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeOther, ResourceType(proto.NetworkResourceTypePreflight))
}

func TestHeaders(t *testing.T) {
	assert.Nil(t, Headers(nil))

	headers := Headers(proto.NetworkHeaders{"b": gson.New("2"), "a": gson.New("1")})
	require.Len(t, headers, 2)
	assert.Equal(t, "a", headers[0].Name)
	assert.Equal(t, "1", headers[0].Value)
}

func TestFrameNavigated(t *testing.T) {
	translator := NewTranslator(4, false, nil)
	translator.RequestWillBeSent(requestWillBeSent("1", "https://example.com/"))

	assert.Nil(t, translator.FrameNavigated(&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "child", ParentID: "main", URL: "https://ads.example.net/"}}))
	assert.Equal(t, 1, translator.Pending())

	commands := translator.FrameNavigated(&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "main", URL: "https://example.com/"}})
	assert.Equal(t, []aggregator.Command{aggregator.TabNavigatedEvent{TabId: 4, Url: "https://example.com/"}}, commands)
	assert.Zero(t, translator.Pending())

	fullFidelity := NewTranslator(4, true, nil)
	commands = fullFidelity.FrameNavigated(&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "main", URL: "https://example.com/"}})
	assert.Equal(t, []aggregator.Command{aggregator.PanelNavigatedEvent{TabId: 4, Url: "https://example.com/"}}, commands)
}

func TestInterceptionTranslation(t *testing.T) {
	translator := NewTranslator(4, false, nil)

	commands := translator.RequestWillBeSent(requestWillBeSent("1", "https://api.example.com/v1"))
	require.Len(t, commands, 2)
	begin, ok := commands[0].(aggregator.BeginEvent)
	require.True(t, ok)
	assert.Equal(t, "1", begin.RequestId)
	assert.Equal(t, webRequestPrivacyTypes.ResourceTypeFetch, begin.Type)
	assert.Equal(t, wallStart.Time(), begin.Timestamp)
	require.NotNil(t, begin.Body)

	headers, ok := commands[1].(aggregator.RequestHeadersEvent)
	require.True(t, ok)
	require.Len(t, headers.Headers, 2)
	assert.Equal(t, "Accept", headers.Headers[0].Name)

	commands = translator.ResponseReceived(responseReceived("1"))
	require.Len(t, commands, 1)
	response := commands[0].(aggregator.ResponseHeadersEvent)
	assert.Equal(t, "2", response.HttpVersion)
	assert.Equal(t, "2001:db8::1", response.ServerIp)

	commands = translator.LoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1", Timestamp: 100.25})
	require.Len(t, commands, 1)
	completed := commands[0].(aggregator.CompletedEvent)
	assert.Equal(t, 201, completed.StatusCode)
	assert.Equal(t, 250*time.Millisecond, completed.Timestamp.Sub(begin.Timestamp))

	assert.Nil(t, translator.LoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1"}))
	assert.Nil(t, translator.ResponseReceived(responseReceived("unknown")))
}

func TestLoadingFailed(t *testing.T) {
	translator := NewTranslator(1, false, nil)
	translator.RequestWillBeSent(requestWillBeSent("9", "https://blocked.doubleclick.net/"))
	translator.ResponseReceived(responseReceived("9"))

	commands := translator.LoadingFailed(&proto.NetworkLoadingFailed{RequestID: "9", Timestamp: 101, ErrorText: "net::ERR_BLOCKED_BY_CLIENT"})
	require.Len(t, commands, 1)
	assert.Zero(t, commands[0].(aggregator.CompletedEvent).StatusCode)
}

func TestFullFidelityTranslation(t *testing.T) {
	var fetched []proto.NetworkRequestID
	translator := NewTranslator(2, true, func(requestId proto.NetworkRequestID) webRequestPrivacyTypes.BodyFetcher {
		return func(ctx context.Context) (string, error) {
			fetched = append(fetched, requestId)
			return "body", nil
		}
	})

	assert.Nil(t, translator.RequestWillBeSent(requestWillBeSent("1", "https://example.com/api")))
	assert.Nil(t, translator.ResponseReceived(responseReceived("1")))

	commands := translator.LoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1", Timestamp: 101, EncodedDataLength: 512})
	require.Len(t, commands, 1)
	finished, ok := commands[0].(aggregator.RequestFinishedCommand)
	require.True(t, ok)
	assert.Equal(t, 2, finished.TabId)

	request := finished.Request
	assert.Equal(t, "1", request.Id)
	assert.Equal(t, 201, request.Status)
	assert.Equal(t, time.Second, request.Duration)
	assert.Equal(t, "application/json", request.MimeType)
	assert.Equal(t, int64(512), *request.Size)
	require.NotNil(t, request.BodyFetcher)

	body, err := request.BodyFetcher(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "body", body)
	assert.Equal(t, []proto.NetworkRequestID{"1"}, fetched)

	translator.RequestWillBeSent(requestWillBeSent("2", "https://example.com/fail"))
	commands = translator.LoadingFailed(&proto.NetworkLoadingFailed{RequestID: "2", Timestamp: 100})
	require.Len(t, commands, 1)
	failed := commands[0].(aggregator.RequestFinishedCommand).Request
	assert.Zero(t, failed.Status)
	assert.Nil(t, failed.BodyFetcher)
}

func TestDecodeBody(t *testing.T) {
	body, err := DecodeBody(nil)
	require.NoError(t, err)
	assert.Empty(t, body)

	body, err = DecodeBody(&proto.NetworkGetResponseBodyResult{Body: "aGVsbG8=", Base64Encoded: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	body, err = DecodeBody(&proto.NetworkGetResponseBodyResult{Body: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", body)

	_, err = DecodeBody(&proto.NetworkGetResponseBodyResult{Body: "!!", Base64Encoded: true})
	assert.Error(t, err)
}

func TestTranslatedEventsIntoEngine(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	engine := aggregator.NewEngine(nil, nil, zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	translator := NewTranslator(3, true, nil)
	var commands []aggregator.Command
	commands = append(commands, translator.FrameNavigated(&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "main", URL: "https://example.com/"}})...)
	commands = append(commands, translator.RequestWillBeSent(requestWillBeSent("1", "https://www.google-analytics.com/g/collect"))...)
	commands = append(commands, translator.ResponseReceived(responseReceived("1"))...)
	commands = append(commands, translator.LoadingFinished(&proto.NetworkLoadingFinished{RequestID: "1", Timestamp: 100.5})...)

	for _, command := range commands {
		require.NoError(t, Dispatch(ctx, engine, command))
	}

	snapshot, found, err := engine.Snapshot(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snapshot.Records, 1)
	assert.True(t, snapshot.Records[0].IsTracker)
	assert.Equal(t, webRequestPrivacyTypes.SourcePanel, snapshot.Records[0].Source)
}
