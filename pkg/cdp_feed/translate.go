package cdp_feed

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_logging"
)

// BodyFetcherFactory returns a fetcher for the response body of requestId.
type BodyFetcherFactory func(requestId proto.NetworkRequestID) webRequestPrivacyTypes.BodyFetcher

type pendingRequest struct {
	url             string
	method          string
	resourceType    webRequestPrivacyTypes.ResourceType
	startTime       time.Time
	startMonotonic  proto.MonotonicTime
	requestHeaders  []*webRequestPrivacyTypes.Header
	requestBody     *string
	responseHeaders []*webRequestPrivacyTypes.Header
	status          int
	mimeType        string
	httpVersion     string
	serverIp        string
	fromCache       bool
}

// Translator turns DevTools protocol events of one page into aggregator commands. In
// full-fidelity mode requests are emitted as fully formed panel records once loading
// ends; otherwise they are emitted as interception lifecycle events as they happen.
// A Translator is not safe for concurrent use.
type Translator struct {
	tabId        int
	fullFidelity bool
	bodyFetchers BodyFetcherFactory
	pending      map[proto.NetworkRequestID]*pendingRequest
}

func NewTranslator(tabId int, fullFidelity bool, bodyFetchers BodyFetcherFactory) *Translator {
	return &Translator{
		tabId:        tabId,
		fullFidelity: fullFidelity,
		bodyFetchers: bodyFetchers,
		pending:      make(map[proto.NetworkRequestID]*pendingRequest),
	}
}

var resourceTypes = map[proto.NetworkResourceType]webRequestPrivacyTypes.ResourceType{
	proto.NetworkResourceTypeDocument:   webRequestPrivacyTypes.ResourceTypeDocument,
	proto.NetworkResourceTypeStylesheet: webRequestPrivacyTypes.ResourceTypeStylesheet,
	proto.NetworkResourceTypeScript:     webRequestPrivacyTypes.ResourceTypeScript,
	proto.NetworkResourceTypeImage:      webRequestPrivacyTypes.ResourceTypeImage,
	proto.NetworkResourceTypeFont:       webRequestPrivacyTypes.ResourceTypeFont,
	proto.NetworkResourceTypeXHR:        webRequestPrivacyTypes.ResourceTypeXhr,
	proto.NetworkResourceTypeFetch:      webRequestPrivacyTypes.ResourceTypeFetch,
	proto.NetworkResourceTypeMedia:      webRequestPrivacyTypes.ResourceTypeMedia,
	proto.NetworkResourceTypeWebSocket:  webRequestPrivacyTypes.ResourceTypeWebSocket,
	proto.NetworkResourceTypePing:       webRequestPrivacyTypes.ResourceTypePing,
}

func ResourceType(resourceType proto.NetworkResourceType) webRequestPrivacyTypes.ResourceType {
	if mapped, ok := resourceTypes[resourceType]; ok {
		return mapped
	}
	return webRequestPrivacyTypes.ResourceTypeOther
}

// Headers converts protocol headers, sorted by name.
func Headers(networkHeaders proto.NetworkHeaders) []*webRequestPrivacyTypes.Header {
	if len(networkHeaders) == 0 {
		return nil
	}
	names := make([]string, 0, len(networkHeaders))
	for name := range networkHeaders {
		names = append(names, name)
	}
	slices.Sort(names)

	headers := make([]*webRequestPrivacyTypes.Header, 0, len(names))
	for _, name := range names {
		headers = append(headers, &webRequestPrivacyTypes.Header{Name: name, Value: networkHeaders[name].Str()})
	}
	return headers
}

func wallTime(timeSinceEpoch proto.TimeSinceEpoch) time.Time {
	if timeSinceEpoch <= 0 {
		return time.Now()
	}
	return timeSinceEpoch.Time()
}

func (translator *Translator) endTime(pending *pendingRequest, timestamp proto.MonotonicTime) time.Time {
	if pending.startMonotonic <= 0 || timestamp < pending.startMonotonic {
		return pending.startTime
	}
	return pending.startTime.Add((timestamp - pending.startMonotonic).Duration())
}

// FrameNavigated resets the tab when its main frame commits a navigation.
func (translator *Translator) FrameNavigated(event *proto.PageFrameNavigated) []aggregator.Command {
	if event == nil || event.Frame == nil || event.Frame.ParentID != "" {
		return nil
	}

	clear(translator.pending)

	if translator.fullFidelity {
		return []aggregator.Command{aggregator.PanelNavigatedEvent{TabId: translator.tabId, Url: event.Frame.URL}}
	}
	return []aggregator.Command{aggregator.TabNavigatedEvent{TabId: translator.tabId, Url: event.Frame.URL}}
}

func (translator *Translator) RequestWillBeSent(event *proto.NetworkRequestWillBeSent) []aggregator.Command {
	if event == nil || event.Request == nil {
		return nil
	}

	pending := &pendingRequest{
		url:            event.Request.URL,
		method:         event.Request.Method,
		resourceType:   ResourceType(event.Type),
		startTime:      wallTime(event.WallTime),
		startMonotonic: event.Timestamp,
		requestHeaders: Headers(event.Request.Headers),
	}
	if event.Request.PostData != "" {
		postData := event.Request.PostData
		pending.requestBody = &postData
	}
	translator.pending[event.RequestID] = pending

	if translator.fullFidelity {
		return nil
	}
	return []aggregator.Command{
		aggregator.BeginEvent{
			RequestId: string(event.RequestID),
			Url:       pending.url,
			Method:    pending.method,
			Type:      pending.resourceType,
			TabId:     translator.tabId,
			Timestamp: pending.startTime,
			Body:      pending.requestBody,
		},
		aggregator.RequestHeadersEvent{
			RequestId: string(event.RequestID),
			TabId:     translator.tabId,
			Headers:   pending.requestHeaders,
		},
	}
}

func (translator *Translator) ResponseReceived(event *proto.NetworkResponseReceived) []aggregator.Command {
	if event == nil || event.Response == nil {
		return nil
	}
	pending, ok := translator.pending[event.RequestID]
	if !ok {
		return nil
	}

	response := event.Response
	pending.responseHeaders = Headers(response.Headers)
	pending.status = response.Status
	pending.mimeType = strings.ToLower(response.MIMEType)
	pending.httpVersion = web_request_logging.NormalizeHttpVersion(response.Protocol)
	pending.serverIp = strings.Trim(response.RemoteIPAddress, "[]")
	pending.fromCache = response.FromDiskCache || response.FromPrefetchCache || response.FromServiceWorker

	if translator.fullFidelity {
		return nil
	}
	return []aggregator.Command{
		aggregator.ResponseHeadersEvent{
			RequestId:   string(event.RequestID),
			TabId:       translator.tabId,
			Headers:     pending.responseHeaders,
			HttpVersion: pending.httpVersion,
			ServerIp:    pending.serverIp,
			FromCache:   pending.fromCache,
		},
	}
}

func (translator *Translator) finish(
	requestId proto.NetworkRequestID,
	timestamp proto.MonotonicTime,
	failed bool,
	encodedDataLength float64,
) []aggregator.Command {
	pending, ok := translator.pending[requestId]
	if !ok {
		return nil
	}
	delete(translator.pending, requestId)

	status := pending.status
	if failed {
		status = 0
	}
	endTime := translator.endTime(pending, timestamp)

	if !translator.fullFidelity {
		return []aggregator.Command{
			aggregator.CompletedEvent{
				RequestId:  string(requestId),
				TabId:      translator.tabId,
				StatusCode: status,
				Timestamp:  endTime,
			},
		}
	}

	request := aggregator.FinishedRequest{
		Id:              string(requestId),
		Url:             pending.url,
		Method:          pending.method,
		Type:            pending.resourceType,
		Status:          status,
		StartTime:       pending.startTime,
		Duration:        endTime.Sub(pending.startTime),
		MimeType:        pending.mimeType,
		HttpVersion:     pending.httpVersion,
		ServerIp:        pending.serverIp,
		FromCache:       pending.fromCache,
		RequestHeaders:  pending.requestHeaders,
		ResponseHeaders: pending.responseHeaders,
		RequestBody:     pending.requestBody,
	}
	if !failed {
		if encodedDataLength > 0 {
			size := int64(encodedDataLength)
			request.Size = &size
		}
		if translator.bodyFetchers != nil {
			request.BodyFetcher = translator.bodyFetchers(requestId)
		}
	}

	return []aggregator.Command{aggregator.RequestFinishedCommand{TabId: translator.tabId, Request: request}}
}

func (translator *Translator) LoadingFinished(event *proto.NetworkLoadingFinished) []aggregator.Command {
	if event == nil {
		return nil
	}
	return translator.finish(event.RequestID, event.Timestamp, false, event.EncodedDataLength)
}

func (translator *Translator) LoadingFailed(event *proto.NetworkLoadingFailed) []aggregator.Command {
	if event == nil {
		return nil
	}
	return translator.finish(event.RequestID, event.Timestamp, true, 0)
}

// Pending returns the number of requests that have started but not finished.
func (translator *Translator) Pending() int {
	return len(translator.pending)
}

// DecodeBody turns a Network.getResponseBody result into text.
func DecodeBody(result *proto.NetworkGetResponseBodyResult) (string, error) {
	if result == nil {
		return "", nil
	}
	if !result.Base64Encoded {
		return result.Body, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(result.Body)
	if err != nil {
		return "", fmt.Errorf("base64 decode string: %w", err)
	}
	return string(decoded), nil
}

// ResponseBodyFetchers returns a factory whose fetchers call Network.getResponseBody
// on client.
func ResponseBodyFetchers(client func(ctx context.Context) proto.Client) BodyFetcherFactory {
	return func(requestId proto.NetworkRequestID) webRequestPrivacyTypes.BodyFetcher {
		return func(ctx context.Context) (string, error) {
			result, err := proto.NetworkGetResponseBody{RequestID: requestId}.Call(client(ctx))
			if err != nil {
				return "", fmt.Errorf("network get response body: %w", err)
			}
			return DecodeBody(result)
		}
	}
}
