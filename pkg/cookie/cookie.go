// Package cookie parses Cookie and Set-Cookie headers and explains what each
// cookie is likely used for.
package cookie

import (
	"strings"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

const SameSiteNotSpecified = "none specified"

type Source string

const (
	SourceRequest  Source = "request"
	SourceResponse Source = "response"
)

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type SetCookie struct {
	Cookie
	// Attributes holds every attribute keyed by its lower-cased name; flag
	// attributes map to "".
	Attributes map[string]string `json:"attributes"`
	Secure     bool              `json:"secure"`
	HttpOnly   bool              `json:"httpOnly"`
	SameSite   string            `json:"sameSite"`
}

type ClassifiedCookie struct {
	Name        string      `json:"name"`
	Value       string      `json:"value"`
	Source      Source      `json:"source"`
	Explanation Explanation `json:"explanation"`
	Secure      bool        `json:"secure,omitempty"`
	HttpOnly    bool        `json:"httpOnly,omitempty"`
	SameSite    string      `json:"sameSite,omitempty"`
}

type Report struct {
	RequestCookies  []ClassifiedCookie `json:"requestCookies"`
	ResponseCookies []ClassifiedCookie `json:"responseCookies"`
	Counts          map[Category]int   `json:"counts"`
	HighRisk        int                `json:"highRisk"`
}

func splitNameValue(pair string) (string, string) {
	name, value, _ := strings.Cut(pair, "=")
	return strings.TrimSpace(name), strings.TrimSpace(value)
}

// ParseCookieHeader parses a Cookie request header value.
func ParseCookieHeader(value string) []Cookie {
	var cookies []Cookie
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, cookieValue := splitNameValue(pair)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: cookieValue})
	}
	return cookies
}

// ParseSetCookie parses Set-Cookie header values. A single value may carry
// several cookies separated by newlines.
func ParseSetCookie(values ...string) []SetCookie {
	var cookies []SetCookie
	for _, value := range values {
		for _, line := range strings.Split(value, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if setCookie, ok := parseSingleSetCookie(line); ok {
				cookies = append(cookies, setCookie)
			}
		}
	}
	return cookies
}

func parseSingleSetCookie(raw string) (SetCookie, bool) {
	parts := strings.Split(raw, ";")
	name, value := splitNameValue(parts[0])
	if name == "" {
		return SetCookie{}, false
	}

	setCookie := SetCookie{
		Cookie:     Cookie{Name: name, Value: value},
		Attributes: make(map[string]string),
		SameSite:   SameSiteNotSpecified,
	}
	for _, part := range parts[1:] {
		key, attrValue := splitNameValue(part)
		key = strings.ToLower(key)
		if key == "" {
			continue
		}
		setCookie.Attributes[key] = attrValue
		switch key {
		case "secure":
			setCookie.Secure = true
		case "httponly":
			setCookie.HttpOnly = true
		case "samesite":
			if attrValue != "" {
				setCookie.SameSite = attrValue
			}
		}
	}
	return setCookie, true
}

var (
	essentialKeywords   = []string{"session", "sess", "auth", "token", "csrf", "xsrf", "login"}
	analyticsKeywords   = []string{"analytics", "stat", "track", "metric", "visitor", "utm"}
	advertisingKeywords = []string{"campaign", "promo", "advert", "marketing", "affiliate", "gclid"}

	// Joined ad identifiers such as adid or adsid. A bare "ad" prefix would
	// match address and admin.
	advertisingTokenPrefixes = []string{"adid", "adsid", "adsrv", "adclick"}
)

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func nameTokens(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func hasToken(name string, tokens ...string) bool {
	for _, field := range nameTokens(name) {
		for _, token := range tokens {
			if field == token {
				return true
			}
		}
	}
	return false
}

func hasTokenPrefix(name string, prefixes ...string) bool {
	for _, field := range nameTokens(name) {
		for _, prefix := range prefixes {
			if strings.HasPrefix(field, prefix) {
				return true
			}
		}
	}
	return false
}

// Classify explains a cookie by exact name, then by the first known name it
// contains, then by keyword family.
func Classify(name string) Explanation {
	if explanation, ok := knownCookiesByName[name]; ok {
		return explanation
	}

	lowerName := strings.ToLower(name)
	for _, e := range knownCookies {
		if strings.Contains(lowerName, strings.ToLower(e.name)) {
			return e.explanation
		}
	}

	switch {
	case containsAny(lowerName, essentialKeywords) || hasToken(lowerName, "sid"):
		return Explanation{CategoryEssential, RiskLow, "Looks like a session or authentication cookie."}
	case containsAny(lowerName, analyticsKeywords):
		return Explanation{CategoryAnalytics, RiskMedium, "Looks like an analytics or statistics cookie."}
	case containsAny(lowerName, advertisingKeywords) || hasToken(lowerName, "ad", "ads") || hasTokenPrefix(lowerName, advertisingTokenPrefixes...):
		return Explanation{CategoryAdvertising, RiskHigh, "Looks like an advertising or campaign cookie."}
	}
	return Explanation{CategoryUnknown, RiskMedium, "Unrecognized cookie; its purpose could not be determined."}
}

// Analyze classifies the cookies sent in Cookie request headers and set by
// Set-Cookie response headers.
func Analyze(requestHeaders []*types.Header, responseHeaders []*types.Header) Report {
	report := Report{
		RequestCookies:  make([]ClassifiedCookie, 0),
		ResponseCookies: make([]ClassifiedCookie, 0),
		Counts:          make(map[Category]int),
	}

	for _, headerValue := range types.HeaderValues(requestHeaders, "Cookie") {
		for _, c := range ParseCookieHeader(headerValue) {
			classified := ClassifiedCookie{
				Name:        c.Name,
				Value:       c.Value,
				Source:      SourceRequest,
				Explanation: Classify(c.Name),
			}
			report.add(classified)
			report.RequestCookies = append(report.RequestCookies, classified)
		}
	}

	for _, setCookie := range ParseSetCookie(types.HeaderValues(responseHeaders, "Set-Cookie")...) {
		classified := ClassifiedCookie{
			Name:        setCookie.Name,
			Value:       setCookie.Value,
			Source:      SourceResponse,
			Explanation: Classify(setCookie.Name),
			Secure:      setCookie.Secure,
			HttpOnly:    setCookie.HttpOnly,
			SameSite:    setCookie.SameSite,
		}
		report.add(classified)
		report.ResponseCookies = append(report.ResponseCookies, classified)
	}

	return report
}

func (report *Report) add(classified ClassifiedCookie) {
	report.Counts[classified.Explanation.Category]++
	if classified.Explanation.Risk == RiskHigh {
		report.HighRisk++
	}
}
