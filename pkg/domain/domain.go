// Package domain derives hostnames and registrable domains from URLs.
//
// Registrable-domain extraction is a deliberate simplification of the public
// suffix algorithm: a hostname collapses to its last two labels, or to its last
// three when the last two form one of a short, fixed list of two-part suffixes.
// Hosts under unlisted multi-part suffixes are mis-split on purpose; changing
// the list changes first/third-party outcomes.
package domain

import (
	"net"
	"net/url"
	"strings"
)

var twoPartSuffixes = map[string]struct{}{
	"co.uk": {}, "org.uk": {}, "ac.uk": {}, "gov.uk": {}, "me.uk": {}, "net.uk": {},
	"co.jp": {}, "ne.jp": {}, "or.jp": {},
	"com.au": {}, "net.au": {}, "org.au": {}, "edu.au": {}, "gov.au": {},
	"co.nz": {}, "org.nz": {},
	"com.br": {}, "net.br": {},
	"com.cn": {}, "net.cn": {}, "org.cn": {},
	"co.in": {}, "co.kr": {}, "co.za": {},
	"com.mx": {}, "com.ar": {}, "com.tr": {},
	"com.sg": {}, "com.hk": {}, "com.tw": {},
}

// IsTwoPartSuffix reports whether suffix is one of the fixed two-part suffixes.
func IsTwoPartSuffix(suffix string) bool {
	_, ok := twoPartSuffixes[strings.ToLower(suffix)]
	return ok
}

// Hostname returns the lower-cased host of rawUrl, or "" when the URL cannot be
// parsed or carries no host. Callers must treat "" as unknown.
func Hostname(rawUrl string) string {
	if rawUrl == "" {
		return ""
	}
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(parsedUrl.Hostname()), ".")
}

func RegistrableDomain(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if hostname == "" {
		return ""
	}
	if net.ParseIP(hostname) != nil {
		return hostname
	}

	hostname = strings.TrimPrefix(hostname, "www.")
	labels := strings.Split(hostname, ".")
	if len(labels) <= 2 {
		return hostname
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if _, ok := twoPartSuffixes[lastTwo]; ok {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// Of returns the registrable domain of rawUrl, or "" when it is unknown.
func Of(rawUrl string) string {
	return RegistrableDomain(Hostname(rawUrl))
}

// IsThirdParty compares the registrable domains of the two URLs. An unknown
// domain on either side is never classified as third-party.
func IsThirdParty(requestUrl string, pageUrl string) bool {
	requestDomain := Of(requestUrl)
	pageDomain := Of(pageUrl)
	if requestDomain == "" || pageDomain == "" {
		return false
	}
	return requestDomain != pageDomain
}

// IsThirdPartyDomain is IsThirdParty for already-derived registrable domains.
func IsThirdPartyDomain(requestDomain string, pageDomain string) bool {
	if requestDomain == "" || pageDomain == "" {
		return false
	}
	return requestDomain != pageDomain
}
