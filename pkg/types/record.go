package types

import (
	"context"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceTypeDocument   ResourceType = "document"
	ResourceTypeStylesheet ResourceType = "stylesheet"
	ResourceTypeScript     ResourceType = "script"
	ResourceTypeImage      ResourceType = "image"
	ResourceTypeFont       ResourceType = "font"
	ResourceTypeXhr        ResourceType = "xhr"
	ResourceTypeFetch      ResourceType = "fetch"
	ResourceTypeMedia      ResourceType = "media"
	ResourceTypeWebSocket  ResourceType = "websocket"
	ResourceTypePing       ResourceType = "ping"
	ResourceTypeOther      ResourceType = "other"
)

// LifecycleState is the furthest point a record has reached. Completed and
// HeadersEnriched are overlays that may arrive in either order.
type LifecycleState string

const (
	StateInitiated       LifecycleState = "initiated"
	StateHeadersRecorded LifecycleState = "headers_recorded"
	StateCompleted       LifecycleState = "completed"
	StateHeadersEnriched LifecycleState = "headers_enriched"
)

type Source string

const (
	SourceInterception Source = "interception"
	SourcePanel        Source = "panel"
)

// BodyFetcher lazily retrieves a response body that the feed did not deliver inline.
type BodyFetcher func(ctx context.Context) (string, error)

type NetworkRequestRecord struct {
	Id              string         `json:"id"`
	Url             string         `json:"url"`
	Method          string         `json:"method"`
	Type            ResourceType   `json:"type"`
	Status          int            `json:"status"`
	Domain          string         `json:"domain"`
	IsThirdParty    bool           `json:"isThirdParty"`
	IsTracker       bool           `json:"isTracker"`
	StartTime       time.Time      `json:"startTime"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	DurationMs      *int64         `json:"durationMs,omitempty"`
	Size            *int64         `json:"size,omitempty"`
	MimeType        string         `json:"mimeType,omitempty"`
	HttpVersion     string         `json:"httpVersion,omitempty"`
	ServerIp        string         `json:"serverIp,omitempty"`
	FromCache       bool           `json:"fromCache,omitempty"`
	RequestHeaders  []*Header      `json:"requestHeaders,omitempty"`
	ResponseHeaders []*Header      `json:"responseHeaders,omitempty"`
	RequestBody     *string        `json:"requestBody,omitempty"`
	ResponseBody    *string        `json:"responseBody,omitempty"`
	State           LifecycleState `json:"state"`
	Source          Source         `json:"source"`
	BodyFetcher     BodyFetcher    `json:"-"`
}

// CloneHeaders copies headers, skipping nil entries.
func CloneHeaders(headers []*Header) []*Header {
	if headers == nil {
		return nil
	}
	cloned := make([]*Header, 0, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		h := *header
		cloned = append(cloned, &h)
	}
	return cloned
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

// Clone returns a deep copy that shares nothing mutable with the receiver.
func (record *NetworkRequestRecord) Clone() *NetworkRequestRecord {
	if record == nil {
		return nil
	}
	cloned := *record
	cloned.EndTime = clonePointer(record.EndTime)
	cloned.DurationMs = clonePointer(record.DurationMs)
	cloned.Size = clonePointer(record.Size)
	cloned.RequestBody = clonePointer(record.RequestBody)
	cloned.ResponseBody = clonePointer(record.ResponseBody)
	cloned.RequestHeaders = CloneHeaders(record.RequestHeaders)
	cloned.ResponseHeaders = CloneHeaders(record.ResponseHeaders)
	return &cloned
}

func (record *NetworkRequestRecord) Completed() bool {
	return record != nil && record.EndTime != nil
}

// HeaderValues returns the values of every header named name, compared case-insensitively.
func HeaderValues(headers []*Header, name string) []string {
	var values []string
	for _, header := range headers {
		if header == nil {
			continue
		}
		if strings.EqualFold(header.Name, name) {
			values = append(values, header.Value)
		}
	}
	return values
}

type TabStats struct {
	TotalRequests   int      `json:"totalRequests"`
	FirstPartyCount int      `json:"firstPartyCount"`
	ThirdPartyCount int      `json:"thirdPartyCount"`
	TrackerCount    int      `json:"trackerCount"`
	TrackerDomains  []string `json:"trackerDomains"`
	UniqueDomains   []string `json:"uniqueDomains"`
}

type TabSnapshot struct {
	TabId      int                     `json:"tabId"`
	PageUrl    string                  `json:"pageUrl"`
	PageDomain string                  `json:"pageDomain"`
	Records    []*NetworkRequestRecord `json:"records"`
	Stats      TabStats                `json:"stats"`
}
