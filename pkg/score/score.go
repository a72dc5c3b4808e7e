// Package score grades a tab's aggregate tracker and third-party exposure.
package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

const PositiveNote = "No significant privacy issues detected"

type Penalties struct {
	Tracker     int `json:"tracker"`
	ThirdParty  int `json:"thirdParty"`
	DomainCount int `json:"domainCount"`
}

type Result struct {
	Score     int       `json:"score"`
	Grade     Grade     `json:"grade"`
	Penalties Penalties `json:"penalties"`
	Issues    []string  `json:"issues"`
}

func trackerPenalty(stats types.TabStats) (int, string) {
	if stats.TrackerCount <= 0 {
		return 0, ""
	}

	penalty := min(stats.TrackerCount*8, 40)
	if stats.TotalRequests > 0 && float64(stats.TrackerCount)/float64(stats.TotalRequests) > 0.1 {
		penalty += 10
	}

	named := stats.TrackerDomains
	if len(named) > 3 {
		named = named[:3]
	}
	issue := fmt.Sprintf("%d tracker request(s) detected", stats.TrackerCount)
	if len(named) > 0 {
		issue += ": " + strings.Join(named, ", ")
		if extra := len(stats.TrackerDomains) - len(named); extra > 0 {
			issue += fmt.Sprintf(" and %d more", extra)
		}
	}
	return penalty, issue
}

func thirdPartyPenalty(stats types.TabStats) (int, string) {
	if stats.TotalRequests <= 0 {
		return 0, ""
	}

	ratio := float64(stats.ThirdPartyCount) / float64(stats.TotalRequests)
	percent := int(math.Round(ratio * 100))
	switch {
	case ratio > 0.7:
		return 30, fmt.Sprintf("Very high share of third-party requests (%d%%)", percent)
	case ratio > 0.5:
		return 20, fmt.Sprintf("High share of third-party requests (%d%%)", percent)
	case ratio > 0.3:
		return 10, fmt.Sprintf("Moderate share of third-party requests (%d%%)", percent)
	default:
		return 0, ""
	}
}

func domainCountPenalty(stats types.TabStats) (int, string) {
	count := len(stats.UniqueDomains)
	switch {
	case count > 30:
		return 20, fmt.Sprintf("Requests spread across a very large number of domains (%d)", count)
	case count > 20:
		return 15, fmt.Sprintf("Requests spread across many domains (%d)", count)
	case count > 10:
		return 8, fmt.Sprintf("Requests spread across %d domains", count)
	case count > 5:
		return 3, ""
	default:
		return 0, ""
	}
}

func GradeFor(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 75:
		return GradeB
	case score >= 60:
		return GradeC
	case score >= 40:
		return GradeD
	default:
		return GradeF
	}
}

// Calculate starts at 100 and subtracts the tracker, third-party and
// domain-count penalties. Issues are listed in that order.
func Calculate(stats types.TabStats) Result {
	issues := make([]string, 0)
	var penalties Penalties

	var issue string
	penalties.Tracker, issue = trackerPenalty(stats)
	if issue != "" {
		issues = append(issues, issue)
	}
	penalties.ThirdParty, issue = thirdPartyPenalty(stats)
	if issue != "" {
		issues = append(issues, issue)
	}
	penalties.DomainCount, issue = domainCountPenalty(stats)
	if issue != "" {
		issues = append(issues, issue)
	}

	score := 100 - penalties.Tracker - penalties.ThirdParty - penalties.DomainCount
	score = max(0, min(100, score))

	if score >= 80 && len(issues) == 0 {
		issues = append(issues, PositiveNote)
	}

	return Result{
		Score:     score,
		Grade:     GradeFor(score),
		Penalties: penalties,
		Issues:    issues,
	}
}
