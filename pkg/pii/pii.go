// Package pii finds personal data in URLs and request/response bodies.
package pii

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

type Type string

const (
	TypeEmail      Type = "email"
	TypePhone      Type = "phone"
	TypeCreditCard Type = "credit_card"
	TypeSsn        Type = "ssn"
	TypeIpAddress  Type = "ip_address"
	TypeName       Type = "name"
	TypeAddress    Type = "address"
)

type Location string

const (
	LocationRequest  Location = "request"
	LocationResponse Location = "response"
	LocationUrl      Location = "url"
)

type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	DefaultMaxScanBytes = 1 << 20
	contextWindow       = 50
)

type Match struct {
	Type     Type     `json:"type"`
	Value    string   `json:"value"`
	Original string   `json:"original"`
	Context  string   `json:"context"`
	Location Location `json:"location"`
}

type Input struct {
	Text     string
	Location Location
}

type Result struct {
	Matches []Match   `json:"matches"`
	Score   int       `json:"score"`
	Risk    RiskLevel `json:"risk"`
}

type category struct {
	piiType  Type
	pattern  *regexp.Regexp
	group    int
	validate func(string) bool
	weight   int
}

// The order is the dedup priority: a value claimed by an earlier category is
// not re-emitted by a later one.
var categories = []category{
	{
		piiType:  TypeCreditCard,
		pattern:  regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		validate: validCreditCard,
		weight:   10,
	},
	{
		piiType:  TypeSsn,
		pattern:  regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`),
		validate: validSSNCandidate,
		weight:   10,
	},
	{
		piiType: TypeEmail,
		pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		weight:  4,
	},
	{
		piiType:  TypePhone,
		pattern:  regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		validate: ValidPhone,
		weight:   4,
	},
	{
		piiType: TypeIpAddress,
		pattern: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
		weight:  1,
	},
	{
		piiType:  TypeName,
		pattern:  regexp.MustCompile(`(?i)(?:first_?name|last_?name|full_?name|given_?name|family_?name|surname|\bname)["']?\s{0,3}[:=]\s{0,3}["']?([a-z][a-z'\-]*(?:[ +][a-z][a-z'\-]*){0,2})`),
		group:    1,
		validate: validName,
		weight:   1,
	},
	{
		piiType:  TypeAddress,
		pattern:  regexp.MustCompile(`(?i)(?:street_?address|address_?line_?\d?|address|street|addr)["']?\s{0,3}[:=]\s{0,3}["']?([^"'&<>{}\r\n]{4,80})`),
		group:    1,
		validate: validAddress,
		weight:   3,
	},
}

// fieldNames holds the context tokens. The one ending closest before a match
// is reported as its context; on a tie the earlier entry wins.
var fieldNames = []string{
	"email", "e-mail",
	"telephone", "mobile", "phone",
	"card_number", "cardnumber", "credit_card", "cc_number", "card",
	"social_security", "ssn",
	"first_name", "firstname", "last_name", "lastname", "full_name", "fullname",
	"user_name", "username", "name",
	"ip_address", "client_ip",
	"street", "address", "zip", "postal", "city",
	"birth", "dob",
	"password", "token", "user",
}

type Detector struct {
	maxScanBytes int
}

func NewDetector(maxScanBytes int) *Detector {
	if maxScanBytes <= 0 {
		maxScanBytes = DefaultMaxScanBytes
	}
	return &Detector{maxScanBytes: maxScanBytes}
}

var defaultDetector = NewDetector(DefaultMaxScanBytes)

func Scan(inputs ...Input) Result {
	return defaultDetector.Scan(inputs...)
}

func ScanRecord(record *types.NetworkRequestRecord) Result {
	return defaultDetector.ScanRecord(record)
}

func (d *Detector) Scan(inputs ...Input) Result {
	seen := make(map[string]struct{})
	matches := make([]Match, 0)

	for _, input := range inputs {
		text := input.Text
		if text == "" {
			continue
		}
		if len(text) > d.maxScanBytes {
			text = text[:d.maxScanBytes]
		}

		// Spans already reported in this input; a later category may not
		// report a value inside one, such as digits within an email.
		var claimed [][2]int

		for _, c := range categories {
			for _, loc := range c.pattern.FindAllStringSubmatchIndex(text, -1) {
				start, end := loc[2*c.group], loc[2*c.group+1]
				if start < 0 {
					continue
				}
				if c.piiType == TypePhone && !digitBounded(text, start, end) {
					continue
				}
				original := strings.TrimSpace(text[start:end])
				if original == "" {
					continue
				}
				if c.validate != nil && !c.validate(original) {
					continue
				}
				if overlaps(claimed, start, end) {
					continue
				}
				claimed = append(claimed, [2]int{start, end})

				key := strings.ToLower(original)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}

				matches = append(matches, Match{
					Type:     c.piiType,
					Value:    maskValue(c.piiType, original),
					Original: original,
					Context:  fieldContext(text, start),
					Location: input.Location,
				})
			}
		}
	}

	score := Score(matches)
	return Result{Matches: matches, Score: score, Risk: RiskFor(score)}
}

// ScanRecord scans the unescaped URL and whichever bodies are loaded.
func (d *Detector) ScanRecord(record *types.NetworkRequestRecord) Result {
	if record == nil {
		return d.Scan()
	}
	inputs := []Input{{Text: unescapeUrl(record.Url), Location: LocationUrl}}
	if record.RequestBody != nil {
		inputs = append(inputs, Input{Text: *record.RequestBody, Location: LocationRequest})
	}
	if record.ResponseBody != nil {
		inputs = append(inputs, Input{Text: *record.ResponseBody, Location: LocationResponse})
	}
	return d.Scan(inputs...)
}

func unescapeUrl(rawUrl string) string {
	unescaped, err := url.QueryUnescape(rawUrl)
	if err != nil {
		return rawUrl
	}
	return unescaped
}

// digitBounded rejects candidates cut out of a longer digit run.
func digitBounded(text string, start, end int) bool {
	if start > 0 && isDigitByte(text[start-1]) {
		return false
	}
	if end < len(text) && isDigitByte(text[end]) {
		return false
	}
	return true
}

func isDigitByte(c byte) bool {
	return c >= '0' && c <= '9'
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, span := range spans {
		if start < span[1] && span[0] < end {
			return true
		}
	}
	return false
}

func fieldContext(text string, start int) string {
	from := max(0, start-contextWindow)
	before := strings.ToLower(text[from:start])

	nearest, nearestEnd := "", -1
	for _, field := range fieldNames {
		if index := strings.LastIndex(before, field); index >= 0 && index+len(field) > nearestEnd {
			nearest, nearestEnd = field, index+len(field)
		}
	}
	return nearest
}

func weightOf(piiType Type) int {
	for _, c := range categories {
		if c.piiType == piiType {
			return c.weight
		}
	}
	return 0
}

func Score(matches []Match) int {
	total := 0
	for _, m := range matches {
		total += weightOf(m.Type)
	}
	return total
}

func RiskFor(score int) RiskLevel {
	switch {
	case score <= 0:
		return RiskNone
	case score < 4:
		return RiskLow
	case score < 10:
		return RiskMedium
	default:
		return RiskHigh
	}
}
