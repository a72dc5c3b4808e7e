// Package web_request_feed decodes the event stream of a webRequest browser extension
// into aggregator commands.
package web_request_feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_logging"
	"go.uber.org/zap"
)

const (
	EventBeforeRequest     = "onBeforeRequest"
	EventBeforeSendHeaders = "onBeforeSendHeaders"
	EventSendHeaders       = "onSendHeaders"
	EventHeadersReceived   = "onHeadersReceived"
	EventResponseStarted   = "onResponseStarted"
	EventCompleted         = "onCompleted"
	EventErrorOccurred     = "onErrorOccurred"
	EventTabNavigated      = "tabNavigated"
	EventTabRemoved        = "tabRemoved"
)

const maxLineSize = 16 * 1024 * 1024

type Message struct {
	Event   string          `json:"event"`
	Details json.RawMessage `json:"details"`
}

type TabDetails struct {
	TabId int    `json:"tabId"`
	Url   string `json:"url"`
}

var resourceTypes = map[string]webRequestPrivacyTypes.ResourceType{
	"main_frame":     webRequestPrivacyTypes.ResourceTypeDocument,
	"sub_frame":      webRequestPrivacyTypes.ResourceTypeDocument,
	"stylesheet":     webRequestPrivacyTypes.ResourceTypeStylesheet,
	"script":         webRequestPrivacyTypes.ResourceTypeScript,
	"image":          webRequestPrivacyTypes.ResourceTypeImage,
	"imageset":       webRequestPrivacyTypes.ResourceTypeImage,
	"font":           webRequestPrivacyTypes.ResourceTypeFont,
	"xmlhttprequest": webRequestPrivacyTypes.ResourceTypeXhr,
	"fetch":          webRequestPrivacyTypes.ResourceTypeFetch,
	"media":          webRequestPrivacyTypes.ResourceTypeMedia,
	"websocket":      webRequestPrivacyTypes.ResourceTypeWebSocket,
	"ping":           webRequestPrivacyTypes.ResourceTypePing,
	"beacon":         webRequestPrivacyTypes.ResourceTypePing,
}

// ResourceType maps a webRequest resource type onto a ResourceType.
func ResourceType(webRequestType string) webRequestPrivacyTypes.ResourceType {
	if resourceType, ok := resourceTypes[webRequestType]; ok {
		return resourceType
	}
	return webRequestPrivacyTypes.ResourceTypeOther
}

// Timestamp converts a webRequest timestamp, milliseconds since the epoch, to a time.
func Timestamp(timeStamp float64) time.Time {
	if timeStamp <= 0 || math.IsNaN(timeStamp) || math.IsInf(timeStamp, 0) {
		return time.Time{}
	}
	return time.UnixMicro(int64(timeStamp * 1000))
}

// RequestBodyText renders an upload as text: form data url-encoded, raw parts concatenated.
func RequestBodyText(requestBody *webRequestPrivacyTypes.RequestBody) *string {
	if requestBody == nil || requestBody.Error != "" {
		return nil
	}

	var text string
	switch {
	case len(requestBody.FormData) != 0:
		text = url.Values(requestBody.FormData).Encode()
	case len(requestBody.Raw) != 0:
		var builder strings.Builder
		for _, uploadData := range requestBody.Raw {
			if uploadData != nil {
				builder.WriteString(uploadData.Bytes)
			}
		}
		text = builder.String()
	}

	if text == "" {
		return nil
	}
	return &text
}

func decodeRequest(details json.RawMessage) (*webRequestPrivacyTypes.NetworkRequest, error) {
	var networkRequest *webRequestPrivacyTypes.NetworkRequest
	if err := json.Unmarshal(details, &networkRequest); err != nil {
		return nil, fmt.Errorf("json unmarshal (network request): %w", err)
	}
	if networkRequest == nil {
		return nil, webRequestPrivacyErrors.ErrNilDetails
	}
	return networkRequest, nil
}

func decodeResponse(details json.RawMessage) (*webRequestPrivacyTypes.NetworkResponse, error) {
	var networkResponse *webRequestPrivacyTypes.NetworkResponse
	if err := json.Unmarshal(details, &networkResponse); err != nil {
		return nil, fmt.Errorf("json unmarshal (network response): %w", err)
	}
	if networkResponse == nil {
		return nil, webRequestPrivacyErrors.ErrNilDetails
	}
	return networkResponse, nil
}

func decodeTab(details json.RawMessage) (*TabDetails, error) {
	var tabDetails *TabDetails
	if err := json.Unmarshal(details, &tabDetails); err != nil {
		return nil, fmt.Errorf("json unmarshal (tab details): %w", err)
	}
	if tabDetails == nil {
		return nil, webRequestPrivacyErrors.ErrNilDetails
	}
	return tabDetails, nil
}

// DecodeMessage translates one extension message into an aggregator command.
func DecodeMessage(message *Message) (aggregator.Command, error) {
	if message == nil {
		return nil, nil
	}
	if len(message.Details) == 0 {
		return nil, webRequestPrivacyErrors.ErrNilDetails
	}

	switch message.Event {
	case EventBeforeRequest:
		networkRequest, err := decodeRequest(message.Details)
		if err != nil {
			return nil, err
		}
		return aggregator.BeginEvent{
			RequestId: networkRequest.RequestId,
			Url:       networkRequest.Url,
			Method:    networkRequest.Method,
			Type:      ResourceType(networkRequest.Type),
			TabId:     networkRequest.TabId,
			Timestamp: Timestamp(networkRequest.TimeStamp),
			Body:      RequestBodyText(networkRequest.RequestBody),
		}, nil
	case EventBeforeSendHeaders, EventSendHeaders:
		networkRequest, err := decodeRequest(message.Details)
		if err != nil {
			return nil, err
		}
		return aggregator.RequestHeadersEvent{
			RequestId: networkRequest.RequestId,
			TabId:     networkRequest.TabId,
			Headers:   networkRequest.RequestHeaders,
		}, nil
	case EventHeadersReceived, EventResponseStarted:
		networkResponse, err := decodeResponse(message.Details)
		if err != nil {
			return nil, err
		}
		httpVersion, _, _ := web_request_logging.ParseStatusLine(networkResponse.StatusLine)
		return aggregator.ResponseHeadersEvent{
			RequestId:   networkResponse.RequestId,
			TabId:       networkResponse.TabId,
			Headers:     networkResponse.ResponseHeaders,
			HttpVersion: httpVersion,
			ServerIp:    networkResponse.IP,
			FromCache:   networkResponse.FromCache,
		}, nil
	case EventCompleted, EventErrorOccurred:
		networkResponse, err := decodeResponse(message.Details)
		if err != nil {
			return nil, err
		}
		statusCode := networkResponse.StatusCode
		if message.Event == EventErrorOccurred {
			statusCode = 0
		}
		return aggregator.CompletedEvent{
			RequestId:  networkResponse.RequestId,
			TabId:      networkResponse.TabId,
			StatusCode: statusCode,
			Timestamp:  Timestamp(networkResponse.TimeStamp),
		}, nil
	case EventTabNavigated:
		tabDetails, err := decodeTab(message.Details)
		if err != nil {
			return nil, err
		}
		return aggregator.TabNavigatedEvent{TabId: tabDetails.TabId, Url: tabDetails.Url}, nil
	case EventTabRemoved:
		tabDetails, err := decodeTab(message.Details)
		if err != nil {
			return nil, err
		}
		return aggregator.TabClosedEvent{TabId: tabDetails.TabId}, nil
	default:
		return nil, fmt.Errorf("%w: %q", webRequestPrivacyErrors.ErrUnknownEvent, message.Event)
	}
}

func Decode(data []byte) (aggregator.Command, error) {
	var message *Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("json unmarshal (message): %w", err)
	}
	return DecodeMessage(message)
}

// Dispatch hands command to the matching method of sink.
func Dispatch(ctx context.Context, sink aggregator.InterceptionSink, command aggregator.Command) error {
	switch c := command.(type) {
	case aggregator.BeginEvent:
		return sink.Begin(ctx, c)
	case aggregator.RequestHeadersEvent:
		return sink.RequestHeaders(ctx, c)
	case aggregator.ResponseHeadersEvent:
		return sink.ResponseHeaders(ctx, c)
	case aggregator.CompletedEvent:
		return sink.Completed(ctx, c)
	case aggregator.TabNavigatedEvent:
		return sink.TabNavigated(ctx, c)
	case aggregator.TabClosedEvent:
		return sink.TabClosed(ctx, c)
	default:
		return webRequestPrivacyErrors.ErrUnknownCommand
	}
}

// Replay feeds newline-delimited messages from reader into sink. Lines that cannot be
// decoded are logged and skipped. It returns the number of dispatched commands.
func Replay(ctx context.Context, reader io.Reader, sink aggregator.InterceptionSink, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var dispatched int
	var lineNumber int
	for scanner.Scan() {
		lineNumber++
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		command, err := Decode(line)
		if err != nil {
			logger.Warn("Skipped undecodable event.", zap.Int("line", lineNumber), zap.Error(err))
			continue
		}
		if command == nil {
			continue
		}

		if err := Dispatch(ctx, sink, command); err != nil {
			return dispatched, fmt.Errorf("dispatch (line %d): %w", lineNumber, err)
		}
		dispatched++
	}
	if err := scanner.Err(); err != nil {
		return dispatched, fmt.Errorf("scanner: %w", err)
	}

	return dispatched, nil
}
