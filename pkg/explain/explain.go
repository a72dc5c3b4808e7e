// Package explain holds curated, human-readable descriptions of HTTP status codes,
// header names and resource types. Lookups never fail; unknown keys get a generic
// description.
package explain

import (
	"strconv"
	"strings"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

type Explanation struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Known       bool   `json:"known"`
}

type entry struct {
	title       string
	description string
}

var statusCodes = map[int]entry{
	100: {"Continue", "The server received the request headers and the client should send the body."},
	101: {"Switching Protocols", "The server is switching to the protocol requested by the client, for example WebSocket."},
	200: {"OK", "The request succeeded."},
	201: {"Created", "The request succeeded and a new resource was created."},
	202: {"Accepted", "The request was accepted for processing, which has not completed."},
	204: {"No Content", "The request succeeded and there is no body. Common for tracking beacons."},
	206: {"Partial Content", "The server is delivering part of the resource because of a range request."},
	301: {"Moved Permanently", "The resource has a new permanent URL."},
	302: {"Found", "The resource is temporarily at another URL. Often used in tracking redirects."},
	303: {"See Other", "The response is found at another URL using GET."},
	304: {"Not Modified", "The cached copy is still valid; no body was sent."},
	307: {"Temporary Redirect", "The resource is temporarily at another URL; the method is kept."},
	308: {"Permanent Redirect", "The resource has a new permanent URL; the method is kept."},
	400: {"Bad Request", "The server could not understand the request."},
	401: {"Unauthorized", "Authentication is required."},
	403: {"Forbidden", "The server refuses to authorize the request."},
	404: {"Not Found", "The resource does not exist."},
	405: {"Method Not Allowed", "The method is not supported for this resource."},
	408: {"Request Timeout", "The server timed out waiting for the request."},
	409: {"Conflict", "The request conflicts with the current state of the resource."},
	410: {"Gone", "The resource is no longer available."},
	413: {"Content Too Large", "The request body is larger than the server accepts."},
	415: {"Unsupported Media Type", "The request body format is not supported."},
	418: {"I'm a teapot", "The server refuses to brew coffee."},
	429: {"Too Many Requests", "The client is being rate limited."},
	500: {"Internal Server Error", "The server hit an unexpected condition."},
	501: {"Not Implemented", "The server does not support the requested functionality."},
	502: {"Bad Gateway", "An upstream server returned an invalid response."},
	503: {"Service Unavailable", "The server is overloaded or down for maintenance."},
	504: {"Gateway Timeout", "An upstream server did not respond in time."},
}

var statusClasses = map[int]entry{
	1: {"Informational", "An interim response."},
	2: {"Success", "The request succeeded."},
	3: {"Redirection", "Further action is needed to complete the request."},
	4: {"Client Error", "The request contains an error."},
	5: {"Server Error", "The server failed to fulfil a valid request."},
}

// Status describes an HTTP status code. Zero means the response never arrived.
func Status(code int) Explanation {
	key := strconv.Itoa(code)
	if entry, ok := statusCodes[code]; ok {
		return Explanation{Key: key, Title: entry.title, Description: entry.description, Known: true}
	}
	if code == 0 {
		return Explanation{Key: key, Title: "No Response", Description: "The request failed or was blocked before a response arrived."}
	}
	if entry, ok := statusClasses[code/100]; ok && code >= 100 && code < 600 {
		return Explanation{Key: key, Title: entry.title, Description: entry.description}
	}
	return Explanation{Key: key, Title: "Unknown Status", Description: "A non-standard status code."}
}

var headers = map[string]string{
	"accept":                           "Media types the client can handle.",
	"accept-encoding":                  "Compression formats the client understands.",
	"accept-language":                  "Preferred languages. Adds to a browser fingerprint.",
	"access-control-allow-credentials": "Whether cross-origin requests may include credentials.",
	"access-control-allow-origin":      "Which origins may read the response.",
	"authorization":                    "Credentials for the request. Sensitive.",
	"cache-control":                    "Caching directives.",
	"content-encoding":                 "Compression applied to the body.",
	"content-length":                   "Size of the body in bytes.",
	"content-security-policy":          "Restricts which sources the page may load.",
	"content-type":                     "Media type of the body.",
	"cookie":                           "Cookies sent to the server. May identify the user.",
	"dnt":                              "Do Not Track preference.",
	"etag":                             "Version identifier of the resource. Can be abused for tracking.",
	"expires":                          "When the response becomes stale.",
	"host":                             "Target host of the request.",
	"if-none-match":                    "Conditional request using a previous ETag.",
	"last-modified":                    "When the resource last changed.",
	"location":                         "Redirect target.",
	"origin":                           "Origin that initiated the request.",
	"permissions-policy":               "Controls which browser features the page may use.",
	"referer":                          "Page that made the request. Leaks browsing context to third parties.",
	"referrer-policy":                  "How much referrer information is sent.",
	"sec-ch-ua":                        "Client hint with the browser brand and version.",
	"sec-ch-ua-mobile":                 "Client hint telling whether the device is mobile.",
	"sec-ch-ua-platform":               "Client hint with the operating system.",
	"sec-fetch-dest":                   "Destination of the request.",
	"sec-fetch-mode":                   "Mode of the request.",
	"sec-fetch-site":                   "Relationship between the initiator and the target origin.",
	"server":                           "Software used by the server.",
	"set-cookie":                       "Cookies the server asks the browser to store.",
	"strict-transport-security":        "Forces HTTPS for future requests.",
	"user-agent":                       "Browser and operating system identification. Adds to a browser fingerprint.",
	"vary":                             "Request headers that affect the cached response.",
	"x-content-type-options":           "Disables MIME type sniffing.",
	"x-forwarded-for":                  "Original client IP address behind a proxy.",
	"x-frame-options":                  "Controls whether the page may be framed.",
	"x-requested-with":                 "Marks requests made by scripts.",
}

// Header describes a header name, compared case-insensitively.
func Header(name string) Explanation {
	key := strings.ToLower(strings.TrimSpace(name))
	if description, ok := headers[key]; ok {
		return Explanation{Key: key, Title: name, Description: description, Known: true}
	}
	switch {
	case strings.HasPrefix(key, "x-"):
		return Explanation{Key: key, Title: name, Description: "A non-standard, application-specific header."}
	case strings.HasPrefix(key, "sec-"):
		return Explanation{Key: key, Title: name, Description: "A browser-controlled header."}
	default:
		return Explanation{Key: key, Title: name, Description: "No description available."}
	}
}

var resourceTypes = map[types.ResourceType]entry{
	types.ResourceTypeDocument:   {"Document", "A top-level page or frame."},
	types.ResourceTypeStylesheet: {"Stylesheet", "CSS that styles the page."},
	types.ResourceTypeScript:     {"Script", "JavaScript executed by the page. Third-party scripts can read everything on the page."},
	types.ResourceTypeImage:      {"Image", "A picture. Tiny third-party images are often tracking pixels."},
	types.ResourceTypeFont:       {"Font", "A web font."},
	types.ResourceTypeXhr:        {"XHR", "A request made by a script with XMLHttpRequest."},
	types.ResourceTypeFetch:      {"Fetch", "A request made by a script with the Fetch API."},
	types.ResourceTypeMedia:      {"Media", "Audio or video."},
	types.ResourceTypeWebSocket:  {"WebSocket", "A persistent two-way connection."},
	types.ResourceTypePing:       {"Ping", "A beacon or hyperlink audit ping. Usually analytics."},
	types.ResourceTypeOther:      {"Other", "A request of another kind."},
}

func ResourceType(resourceType types.ResourceType) Explanation {
	key := string(resourceType)
	if entry, ok := resourceTypes[resourceType]; ok {
		return Explanation{Key: key, Title: entry.title, Description: entry.description, Known: true}
	}
	return Explanation{Key: key, Title: key, Description: "An unrecognized resource type."}
}

// RecordExplanations groups the explanations relevant to one record.
type RecordExplanations struct {
	Status          Explanation   `json:"status"`
	Type            Explanation   `json:"type"`
	RequestHeaders  []Explanation `json:"requestHeaders"`
	ResponseHeaders []Explanation `json:"responseHeaders"`
}

func headerExplanations(headers []*types.Header) []Explanation {
	explanations := make([]Explanation, 0, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		explanations = append(explanations, Header(header.Name))
	}
	return explanations
}

func Record(record *types.NetworkRequestRecord) *RecordExplanations {
	if record == nil {
		return nil
	}
	return &RecordExplanations{
		Status:          Status(record.Status),
		Type:            ResourceType(record.Type),
		RequestHeaders:  headerExplanations(record.RequestHeaders),
		ResponseHeaders: headerExplanations(record.ResponseHeaders),
	}
}
