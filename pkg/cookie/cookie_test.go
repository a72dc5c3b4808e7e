package cookie

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

func TestClassifyKnownNames(t *testing.T) {
	ga := Classify("_ga")
	assert.Equal(t, CategoryAnalytics, ga.Category)
	assert.Equal(t, RiskMedium, ga.Risk)

	session := Classify("sessionid")
	assert.Equal(t, CategoryEssential, session.Category)
	assert.Equal(t, RiskLow, session.Risk)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		risk     Risk
	}{
		{"_gat", CategoryAnalytics, RiskLow},
		{"_ga_XYZ123", CategoryAnalytics, RiskMedium},
		{"PHPSESSID", CategoryEssential, RiskLow},
		{"_fbp", CategoryAdvertising, RiskHigh},
		{"__Host-session", CategoryEssential, RiskLow},
		{"user_auth_state", CategoryEssential, RiskLow},
		{"app_sid", CategoryEssential, RiskLow},
		{"page_stats", CategoryAnalytics, RiskMedium},
		{"click_tracker", CategoryAnalytics, RiskMedium},
		{"summer_promo", CategoryAdvertising, RiskHigh},
		{"partner-ad-id", CategoryAdvertising, RiskHigh},
		{"__gads_x", CategoryAdvertising, RiskHigh},
		{"adid", CategoryAdvertising, RiskHigh},
		{"user_adsid", CategoryAdvertising, RiskHigh},
		{"address_book", CategoryUnknown, RiskMedium},
		{"download_ready", CategoryUnknown, RiskMedium},
		{"", CategoryUnknown, RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			explanation := Classify(tt.name)
			assert.Equal(t, tt.category, explanation.Category)
			assert.Equal(t, tt.risk, explanation.Risk)
			assert.NotEmpty(t, explanation.Description)
		})
	}
}

func TestParseCookieHeader(t *testing.T) {
	got := ParseCookieHeader(" _ga=GA1.2.3.4; sessionid=abc=def ;; lone ; =orphan")
	want := []Cookie{
		{Name: "_ga", Value: "GA1.2.3.4"},
		{Name: "sessionid", Value: "abc=def"},
		{Name: "lone", Value: ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseCookieHeader() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, ParseCookieHeader(""))
}

func TestParseSetCookie(t *testing.T) {
	cookies := ParseSetCookie(
		"sessionid=abc; Path=/; Secure; HttpOnly; SameSite=Lax",
		"_fbp=fb.1.2; Domain=.example.com; Max-Age=7776000\nlang=en",
	)
	require.Len(t, cookies, 3)

	assert.Equal(t, "sessionid", cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, "Lax", cookies[0].SameSite)
	assert.Equal(t, "/", cookies[0].Attributes["path"])

	assert.Equal(t, "_fbp", cookies[1].Name)
	assert.False(t, cookies[1].Secure)
	assert.Equal(t, SameSiteNotSpecified, cookies[1].SameSite)
	assert.Equal(t, ".example.com", cookies[1].Attributes["domain"])
	assert.Equal(t, "7776000", cookies[1].Attributes["max-age"])

	assert.Equal(t, "lang", cookies[2].Name)
	assert.Equal(t, "en", cookies[2].Value)
}

func TestParseSetCookieSkipsNameless(t *testing.T) {
	assert.Empty(t, ParseSetCookie("", "=value; Secure", "\n"))
}

func TestAnalyze(t *testing.T) {
	report := Analyze(
		[]*types.Header{{Name: "cookie", Value: "_ga=1; sessionid=2"}},
		[]*types.Header{
			{Name: "Set-Cookie", Value: "_fbp=3; Secure"},
			{Name: "Content-Type", Value: "text/html"},
		},
	)

	require.Len(t, report.RequestCookies, 2)
	require.Len(t, report.ResponseCookies, 1)
	assert.Equal(t, SourceResponse, report.ResponseCookies[0].Source)
	assert.True(t, report.ResponseCookies[0].Secure)
	assert.Equal(t, SameSiteNotSpecified, report.ResponseCookies[0].SameSite)
	assert.Equal(t, map[Category]int{
		CategoryAnalytics:   1,
		CategoryEssential:   1,
		CategoryAdvertising: 1,
	}, report.Counts)
	assert.Equal(t, 1, report.HighRisk)
}

func TestAnalyzeNoHeaders(t *testing.T) {
	report := Analyze(nil, nil)
	assert.Empty(t, report.RequestCookies)
	assert.Empty(t, report.ResponseCookies)
	assert.Empty(t, report.Counts)
}

func TestCategoryExplain(t *testing.T) {
	assert.NotEqual(t, CategoryUnknown.Explain(), CategoryTracking.Explain())
}
