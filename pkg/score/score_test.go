package score

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

func domains(n int, suffix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("d%d.%s", i, suffix)
	}
	return out
}

func TestCalculateHeavyTracking(t *testing.T) {
	stats := types.TabStats{
		TotalRequests:   20,
		FirstPartyCount: 5,
		ThirdPartyCount: 15,
		TrackerCount:    3,
		TrackerDomains:  []string{"doubleclick.net", "google-analytics.com", "facebook.net"},
		UniqueDomains:   domains(12, "com"),
	}

	got := Calculate(stats)

	want := Result{
		Score:     28,
		Grade:     GradeF,
		Penalties: Penalties{Tracker: 34, ThirdParty: 30, DomainCount: 8},
		Issues: []string{
			"3 tracker request(s) detected: doubleclick.net, google-analytics.com, facebook.net",
			"Very high share of third-party requests (75%)",
			"Requests spread across 12 domains",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Calculate() mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculateEmptyStats(t *testing.T) {
	got := Calculate(types.TabStats{})

	assert.Equal(t, 100, got.Score)
	assert.Equal(t, GradeA, got.Grade)
	assert.Equal(t, []string{PositiveNote}, got.Issues)
}

func TestCalculateTrackersWithoutRequests(t *testing.T) {
	got := Calculate(types.TabStats{TrackerCount: 2})

	assert.Equal(t, 16, got.Penalties.Tracker, "no ratio bonus when total is zero")
	assert.Equal(t, 0, got.Penalties.ThirdParty)
}

func TestCalculateTrackerPenaltyCap(t *testing.T) {
	stats := types.TabStats{
		TotalRequests:  100,
		TrackerCount:   9,
		TrackerDomains: []string{"a.net", "b.net", "c.net", "d.net", "e.net"},
	}

	got := Calculate(stats)

	assert.Equal(t, 40, got.Penalties.Tracker, "9/100 does not exceed the 10% ratio")
	require.NotEmpty(t, got.Issues)
	assert.Equal(t, "9 tracker request(s) detected: a.net, b.net, c.net and 2 more", got.Issues[0])
}

func TestThirdPartyTiers(t *testing.T) {
	tests := []struct {
		thirdParty int
		penalty    int
	}{
		{71, 30},
		{70, 20},
		{51, 20},
		{50, 10},
		{31, 10},
		{30, 0},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.thirdParty), func(t *testing.T) {
			got := Calculate(types.TabStats{TotalRequests: 100, ThirdPartyCount: tt.thirdParty})
			assert.Equal(t, tt.penalty, got.Penalties.ThirdParty)
		})
	}
}

func TestDomainCountTiers(t *testing.T) {
	tests := []struct {
		count   int
		penalty int
		issue   bool
	}{
		{31, 20, true},
		{21, 15, true},
		{11, 8, true},
		{10, 3, false},
		{6, 3, false},
		{5, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.count), func(t *testing.T) {
			got := Calculate(types.TabStats{UniqueDomains: domains(tt.count, "org")})
			assert.Equal(t, tt.penalty, got.Penalties.DomainCount)
			if tt.issue {
				assert.NotContains(t, got.Issues, PositiveNote)
			} else {
				assert.Equal(t, []string{PositiveNote}, got.Issues)
			}
		})
	}
}

func TestCalculateClampsAtZero(t *testing.T) {
	stats := types.TabStats{
		TotalRequests:   10,
		ThirdPartyCount: 10,
		TrackerCount:    10,
		UniqueDomains:   domains(40, "net"),
	}

	got := Calculate(stats)

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, GradeF, got.Grade)
}

func TestNoPositiveNoteWhenIssuesExist(t *testing.T) {
	got := Calculate(types.TabStats{TotalRequests: 10, ThirdPartyCount: 4, UniqueDomains: domains(8, "io")})

	assert.Equal(t, 87, got.Score)
	assert.Equal(t, []string{"Moderate share of third-party requests (40%)"}, got.Issues)
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, GradeA, GradeFor(90))
	assert.Equal(t, GradeB, GradeFor(89))
	assert.Equal(t, GradeB, GradeFor(75))
	assert.Equal(t, GradeC, GradeFor(60))
	assert.Equal(t, GradeD, GradeFor(40))
	assert.Equal(t, GradeF, GradeFor(39))
}
