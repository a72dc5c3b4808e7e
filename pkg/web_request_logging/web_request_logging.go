package web_request_logging

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Motmedel/ecs_go/ecs"
	"github.com/Motmedel/utils_go/pkg/net/domain_breakdown"
	"github.com/vphpersson/web_request_privacy/pkg/explain"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	webRequestPrivacyTypes "github.com/vphpersson/web_request_privacy/pkg/types"
)

var httpVersionPattern = regexp.MustCompile(`^HTTP/([^ ]+) \d+( (.+))?$`)

// ParseStatusLine extracts the HTTP version and reason phrase from a status line such as
// "HTTP/1.1 200 OK".
func ParseStatusLine(statusLine string) (string, string, error) {
	matches := httpVersionPattern.FindStringSubmatch(statusLine)
	if len(matches) < 2 {
		return "", "", webRequestPrivacyErrors.ErrUnmatchedHttpVersion
	}
	return matches[1], matches[3], nil
}

// NormalizeHttpVersion maps protocol identifiers such as "h2", "http/1.1" or "HTTP/2.0"
// onto the ECS form ("2", "1.1").
func NormalizeHttpVersion(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "":
		return ""
	case "h2", "h2c", "http/2", "http/2.0":
		return "2"
	case "h3", "http/3", "http/3.0":
		return "3"
	}
	if strings.HasPrefix(protocol, "h3-") {
		return "3"
	}
	return strings.TrimPrefix(protocol, "http/")
}

func normalizeHeaders(headers []*webRequestPrivacyTypes.Header) *ecs.HttpHeaders {
	var headerStrings []string
	for _, header := range headers {
		if header == nil {
			continue
		}
		headerStrings = append(headerStrings, fmt.Sprintf("%s: %s\r\n", header.Name, header.Value))
	}
	if len(headerStrings) == 0 {
		return nil
	}
	return &ecs.HttpHeaders{Normalized: strings.Join(headerStrings, "")}
}

// ParseUrl maps a request URL onto the ECS url and server fields.
func ParseUrl(rawUrl string) (*ecs.Url, *ecs.Target, error) {
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("url parse: %w", err)
	}

	hostname := parsedUrl.Hostname()

	var username string
	var password string
	if userInfo := parsedUrl.User; userInfo != nil {
		username = userInfo.Username()
		password, _ = userInfo.Password()
	}

	ecsUrl := &ecs.Url{
		Domain:    hostname,
		Extension: strings.TrimPrefix(filepath.Ext(parsedUrl.Path), "."),
		Fragment:  parsedUrl.Fragment,
		Original:  rawUrl,
		Full:      rawUrl,
		Password:  password,
		Path:      parsedUrl.Path,
		Query:     parsedUrl.RawQuery,
		Scheme:    parsedUrl.Scheme,
		Username:  username,
	}

	var port int
	if parsedUrlPort := parsedUrl.Port(); parsedUrlPort != "" {
		port, err = strconv.Atoi(parsedUrlPort)
		if err != nil {
			return nil, nil, fmt.Errorf("strconv atoi (url port): %w", err)
		}

		ecsUrl.Port = port
	} else {
		switch parsedUrl.Scheme {
		case "http", "ws":
			port = 80
		case "https", "wss":
			port = 443
		}
	}

	ecsServer := &ecs.Target{Address: hostname, Port: port}

	if breakdown := domain_breakdown.GetDomainBreakdown(hostname); breakdown != nil {
		ecsUrl.RegisteredDomain = breakdown.RegisteredDomain
		ecsServer.RegisteredDomain = breakdown.RegisteredDomain

		ecsUrl.Subdomain = breakdown.Subdomain
		ecsServer.Subdomain = breakdown.Subdomain

		ecsUrl.TopLevelDomain = breakdown.TopLevelDomain
		ecsServer.TopLevelDomain = breakdown.TopLevelDomain

		ecsServer.Domain = hostname
	} else if parsedIp := net.ParseIP(hostname); parsedIp != nil {
		ecsServer.Ip = parsedIp.String()
	}

	return ecsUrl, ecsServer, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MakeEcsDocument renders a record observed in tab tabId, whose top-level page is
// pageUrl, as an ECS document.
func MakeEcsDocument(
	record *webRequestPrivacyTypes.NetworkRequestRecord,
	tabId int,
	pageUrl string,
) (*webRequestPrivacyTypes.EcsWebRequestLoggingBase, error) {
	if record == nil {
		return nil, nil
	}

	ecsUrl, ecsServer, err := ParseUrl(record.Url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if ecsServer == nil {
		return nil, webRequestPrivacyErrors.ErrNilEcsServer
	}
	if record.ServerIp != "" {
		ecsServer.Ip = record.ServerIp
	}

	protocol := "http"
	if ecsUrl.Scheme == "ws" || ecsUrl.Scheme == "wss" {
		protocol = "websocket"
	}

	ecsHttpRequest := &ecs.HttpRequest{
		Id:          record.Id,
		Method:      record.Method,
		HttpHeaders: normalizeHeaders(record.RequestHeaders),
	}
	if referrers := webRequestPrivacyTypes.HeaderValues(record.RequestHeaders, "referer"); len(referrers) != 0 {
		ecsHttpRequest.Referrer = referrers[0]
	}

	startTime := formatTime(record.StartTime)

	base := &webRequestPrivacyTypes.EcsWebRequestLoggingBase{
		Base: ecs.Base{
			Timestamp: startTime,
			Event: &ecs.Event{
				Kind:     "event",
				Category: []string{"network", "web"},
				Type:     []string{"connection"},
				Start:    startTime,
			},
			Http:    &ecs.Http{Request: ecsHttpRequest, Version: record.HttpVersion},
			Network: &ecs.Network{Protocol: protocol},
			Server:  ecsServer,
			Url:     ecsUrl,
		},
		WebRequestLogging: &webRequestPrivacyTypes.EcsWebRequestLogging{
			TabId:             tabId,
			Type:              string(record.Type),
			Source:            string(record.Source),
			RegistrableDomain: record.Domain,
			ThirdParty:        record.IsThirdParty,
			Tracker:           record.IsTracker,
			PageUrl:           pageUrl,
		},
	}

	if err := addResponse(base, record); err != nil {
		return nil, fmt.Errorf("add response: %w", err)
	}

	return base, nil
}

func addResponse(
	base *webRequestPrivacyTypes.EcsWebRequestLoggingBase,
	record *webRequestPrivacyTypes.NetworkRequestRecord,
) error {
	if base == nil {
		return webRequestPrivacyErrors.ErrNilEcsBase
	}
	if record == nil {
		return webRequestPrivacyErrors.ErrNilRecord
	}

	ecsEvent := base.Event
	if ecsEvent == nil {
		return webRequestPrivacyErrors.ErrNilEcsEvent
	}
	if record.EndTime != nil {
		ecsEvent.End = formatTime(*record.EndTime)
	}

	ecsNetwork := base.Network
	if ecsNetwork == nil {
		return webRequestPrivacyErrors.ErrNilEcsNetwork
	}
	switch record.HttpVersion {
	case "3":
		ecsNetwork.Transport = "udp"
		ecsNetwork.IanaNumber = "17"
	default:
		ecsNetwork.Transport = "tcp"
		ecsNetwork.IanaNumber = "6"
	}

	ecsWebRequestLogging := base.WebRequestLogging
	if ecsWebRequestLogging == nil {
		return webRequestPrivacyErrors.ErrNilWebRequestLogging
	}
	if record.Completed() || record.FromCache {
		fromCache := record.FromCache
		ecsWebRequestLogging.FromCache = &fromCache
	}

	if record.Status == 0 && len(record.ResponseHeaders) == 0 {
		return nil
	}

	ecsHttp := base.Http
	if ecsHttp == nil {
		return webRequestPrivacyErrors.ErrNilEcsHttp
	}
	if ecsHttp.Request == nil {
		return webRequestPrivacyErrors.ErrNilEcsHttpRequest
	}

	ecsHttpResponse := &ecs.HttpResponse{
		StatusCode:  record.Status,
		ContentType: record.MimeType,
		HttpHeaders: normalizeHeaders(record.ResponseHeaders),
	}
	if record.Status != 0 {
		ecsHttpResponse.ReasonPhrase = explain.Status(record.Status).Title
	}
	if contentTypes := webRequestPrivacyTypes.HeaderValues(record.ResponseHeaders, "content-type"); len(contentTypes) != 0 {
		ecsHttpResponse.ContentType = contentTypes[0]
	}

	ecsHttp.Response = ecsHttpResponse

	return nil
}

// MakeEcsDocuments renders every record of a snapshot, in order.
func MakeEcsDocuments(snapshot *webRequestPrivacyTypes.TabSnapshot) ([]*webRequestPrivacyTypes.EcsWebRequestLoggingBase, error) {
	if snapshot == nil {
		return nil, nil
	}

	documents := make([]*webRequestPrivacyTypes.EcsWebRequestLoggingBase, 0, len(snapshot.Records))
	for _, record := range snapshot.Records {
		document, err := MakeEcsDocument(record, snapshot.TabId, snapshot.PageUrl)
		if err != nil {
			return nil, fmt.Errorf("make ecs document (%s): %w", record.Id, err)
		}
		if document != nil {
			documents = append(documents, document)
		}
	}
	return documents, nil
}
