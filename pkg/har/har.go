// Package har reads HTTP Archive 1.2 files and turns their entries into fully formed
// panel-feed requests.
package har

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_logging"
)

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Page struct {
	StartedDateTime string `json:"startedDateTime"`
	Id              string `json:"id"`
	Title           string `json:"title"`
}

type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type Request struct {
	Method      string       `json:"method"`
	Url         string       `json:"url"`
	HttpVersion string       `json:"httpVersion"`
	Headers     []*NameValue `json:"headers"`
	QueryString []*NameValue `json:"queryString"`
	Cookies     []*NameValue `json:"cookies"`
	PostData    *PostData    `json:"postData,omitempty"`
	HeadersSize int64        `json:"headersSize"`
	BodySize    int64        `json:"bodySize"`
}

type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type Response struct {
	Status      int          `json:"status"`
	StatusText  string       `json:"statusText"`
	HttpVersion string       `json:"httpVersion"`
	Headers     []*NameValue `json:"headers"`
	Cookies     []*NameValue `json:"cookies"`
	Content     *Content     `json:"content"`
	RedirectUrl string       `json:"redirectURL"`
	HeadersSize int64        `json:"headersSize"`
	BodySize    int64        `json:"bodySize"`
}

type Entry struct {
	Pageref         string    `json:"pageref,omitempty"`
	StartedDateTime string    `json:"startedDateTime"`
	Time            float64   `json:"time"`
	Request         *Request  `json:"request"`
	Response        *Response `json:"response"`
	ServerIpAddress string    `json:"serverIPAddress,omitempty"`
	Connection      string    `json:"connection,omitempty"`
	RequestId       string    `json:"_requestId,omitempty"`
	ResourceType    string    `json:"_resourceType,omitempty"`
	FromCache       string    `json:"_fromCache,omitempty"`
}

type Log struct {
	Version string   `json:"version"`
	Creator *Creator `json:"creator"`
	Pages   []*Page  `json:"pages,omitempty"`
	Entries []*Entry `json:"entries"`
}

type Archive struct {
	Log *Log `json:"log"`
}

// Load decodes an archive. A bare log object without the enclosing {"log": ...} is accepted.
func Load(reader io.Reader) (*Log, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("io read all: %w", err)
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("json unmarshal (archive): %w", err)
	}
	if archive.Log != nil {
		return archive.Log, nil
	}

	var log *Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("json unmarshal (log): %w", err)
	}
	if log == nil || log.Entries == nil {
		return nil, webRequestPrivacyErrors.ErrNilHarLog
	}
	return log, nil
}

func headers(nameValues []*NameValue) []*webRequestPrivacyTypes.Header {
	var result []*webRequestPrivacyTypes.Header
	for _, nameValue := range nameValues {
		if nameValue == nil {
			continue
		}
		result = append(result, &webRequestPrivacyTypes.Header{Name: nameValue.Name, Value: nameValue.Value})
	}
	return result
}

var resourceTypes = map[string]webRequestPrivacyTypes.ResourceType{
	"document":   webRequestPrivacyTypes.ResourceTypeDocument,
	"stylesheet": webRequestPrivacyTypes.ResourceTypeStylesheet,
	"script":     webRequestPrivacyTypes.ResourceTypeScript,
	"image":      webRequestPrivacyTypes.ResourceTypeImage,
	"font":       webRequestPrivacyTypes.ResourceTypeFont,
	"xhr":        webRequestPrivacyTypes.ResourceTypeXhr,
	"fetch":      webRequestPrivacyTypes.ResourceTypeFetch,
	"media":      webRequestPrivacyTypes.ResourceTypeMedia,
	"websocket":  webRequestPrivacyTypes.ResourceTypeWebSocket,
	"ping":       webRequestPrivacyTypes.ResourceTypePing,
}

// ResourceTypeOf uses the browser-provided resource type when present and otherwise
// guesses from the MIME type.
func ResourceTypeOf(resourceType string, mimeType string) webRequestPrivacyTypes.ResourceType {
	if resourceType != "" {
		if mapped, ok := resourceTypes[strings.ToLower(resourceType)]; ok {
			return mapped
		}
		return webRequestPrivacyTypes.ResourceTypeOther
	}

	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "text/html"):
		return webRequestPrivacyTypes.ResourceTypeDocument
	case strings.HasPrefix(mimeType, "text/css"):
		return webRequestPrivacyTypes.ResourceTypeStylesheet
	case strings.Contains(mimeType, "javascript"):
		return webRequestPrivacyTypes.ResourceTypeScript
	case strings.HasPrefix(mimeType, "image/"):
		return webRequestPrivacyTypes.ResourceTypeImage
	case strings.HasPrefix(mimeType, "font/"), strings.Contains(mimeType, "font-woff"):
		return webRequestPrivacyTypes.ResourceTypeFont
	case strings.HasPrefix(mimeType, "audio/"), strings.HasPrefix(mimeType, "video/"):
		return webRequestPrivacyTypes.ResourceTypeMedia
	default:
		return webRequestPrivacyTypes.ResourceTypeOther
	}
}

func parseTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Body returns the decoded response content, or nil when the archive holds none.
func (content *Content) Body() (*string, error) {
	if content == nil || content.Text == "" {
		return nil, nil
	}
	if !strings.EqualFold(content.Encoding, "base64") {
		text := content.Text
		return &text, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(content.Text)
	if err != nil {
		return nil, fmt.Errorf("base64 decode string: %w", err)
	}
	text := string(decoded)
	return &text, nil
}

// Finished converts the entry into a panel-feed request. The response body is exposed
// through a BodyFetcher rather than inline.
func (entry *Entry) Finished() aggregator.FinishedRequest {
	if entry == nil {
		return aggregator.FinishedRequest{}
	}

	id := entry.RequestId
	if id == "" {
		id = uuid.NewString()
	}

	finished := aggregator.FinishedRequest{
		Id:        id,
		StartTime: parseTime(entry.StartedDateTime),
		Duration:  time.Duration(max(entry.Time, 0) * float64(time.Millisecond)),
		ServerIp:  strings.Trim(entry.ServerIpAddress, "[]"),
		FromCache: entry.FromCache != "",
	}

	var contentMimeType string
	if request := entry.Request; request != nil {
		finished.Url = request.Url
		finished.Method = request.Method
		finished.RequestHeaders = headers(request.Headers)
		if postData := request.PostData; postData != nil && postData.Text != "" {
			text := postData.Text
			finished.RequestBody = &text
		}
	}
	if response := entry.Response; response != nil {
		finished.Status = response.Status
		finished.ResponseHeaders = headers(response.Headers)
		finished.HttpVersion = web_request_logging.NormalizeHttpVersion(response.HttpVersion)

		if content := response.Content; content != nil {
			contentMimeType = content.MimeType
			mimeType, _, _ := strings.Cut(content.MimeType, ";")
			finished.MimeType = strings.ToLower(strings.TrimSpace(mimeType))
			if content.Size >= 0 {
				size := content.Size
				finished.Size = &size
			}
			if content.Text != "" {
				finished.BodyFetcher = func(ctx context.Context) (string, error) {
					body, err := content.Body()
					if err != nil {
						return "", err
					}
					if body == nil {
						return "", nil
					}
					return *body, nil
				}
			}
		}
		if finished.Size == nil && response.BodySize >= 0 {
			size := response.BodySize
			finished.Size = &size
		}
	}
	finished.Type = ResourceTypeOf(entry.ResourceType, contentMimeType)

	return finished
}

// FinishedRequests converts every entry, in archive order.
func (log *Log) FinishedRequests() []aggregator.FinishedRequest {
	if log == nil {
		return nil
	}
	requests := make([]aggregator.FinishedRequest, 0, len(log.Entries))
	for _, entry := range log.Entries {
		if entry == nil || entry.Request == nil {
			continue
		}
		requests = append(requests, entry.Finished())
	}
	return requests
}

// PageUrl returns the URL of the first document entry, or of the first entry when no
// entry is marked as a document.
func (log *Log) PageUrl() string {
	if log == nil {
		return ""
	}
	var first string
	for _, entry := range log.Entries {
		if entry == nil || entry.Request == nil {
			continue
		}
		if first == "" {
			first = entry.Request.Url
		}
		var mimeType string
		if entry.Response != nil && entry.Response.Content != nil {
			mimeType = entry.Response.Content.MimeType
		}
		if ResourceTypeOf(entry.ResourceType, mimeType) == webRequestPrivacyTypes.ResourceTypeDocument {
			return entry.Request.Url
		}
	}
	return first
}

// Ingest resets tab tabId to the archive's page and ingests its entries.
func Ingest(ctx context.Context, sink aggregator.PanelSink, tabId int, log *Log) error {
	if log == nil {
		return webRequestPrivacyErrors.ErrNilHarLog
	}
	if pageUrl := log.PageUrl(); pageUrl != "" {
		if err := sink.PanelNavigated(ctx, tabId, pageUrl); err != nil {
			return fmt.Errorf("panel navigated: %w", err)
		}
	}
	if err := sink.IngestExisting(ctx, tabId, log.FinishedRequests()); err != nil {
		return fmt.Errorf("ingest existing: %w", err)
	}
	return nil
}
