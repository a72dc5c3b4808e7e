package cookie

type Category string

const (
	CategoryEssential   Category = "essential"
	CategoryFunctional  Category = "functional"
	CategoryAnalytics   Category = "analytics"
	CategoryAdvertising Category = "advertising"
	CategoryTracking    Category = "tracking"
	CategoryUnknown     Category = "unknown"
)

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

type Explanation struct {
	Category    Category `json:"category"`
	Risk        Risk     `json:"risk"`
	Description string   `json:"description"`
}

func (c Category) Explain() string {
	switch c {
	case CategoryEssential:
		return "Required for the site to work, such as keeping you signed in."
	case CategoryFunctional:
		return "Remembers preferences such as language or layout."
	case CategoryAnalytics:
		return "Measures how visitors use the site."
	case CategoryAdvertising:
		return "Used to target and measure advertising."
	case CategoryTracking:
		return "Follows you across sites to build a profile."
	default:
		return "Purpose could not be determined."
	}
}

type entry struct {
	name        string
	explanation Explanation
}

// knownCookies is scanned in order for substring matches, so more specific
// names come before names they contain.
var knownCookies = []entry{
	// Google advertising, ahead of _ga which __gads contains
	{"_gcl_au", Explanation{CategoryAdvertising, RiskHigh, "Google Ads conversion linker."}},
	{"__gads", Explanation{CategoryAdvertising, RiskHigh, "Google AdSense ad targeting and measurement."}},
	{"__gpi", Explanation{CategoryAdvertising, RiskHigh, "Google ad publisher identifier."}},
	{"test_cookie", Explanation{CategoryAdvertising, RiskMedium, "DoubleClick probe checking whether cookies are accepted."}},
	// Google Analytics
	{"_gid", Explanation{CategoryAnalytics, RiskMedium, "Google Analytics identifier that distinguishes visitors for 24 hours."}},
	{"_gat", Explanation{CategoryAnalytics, RiskLow, "Google Analytics request throttling."}},
	{"_ga", Explanation{CategoryAnalytics, RiskMedium, "Google Analytics visitor identifier, kept for up to two years."}},
	{"__utma", Explanation{CategoryAnalytics, RiskMedium, "Legacy Google Analytics visitor identifier."}},
	{"__utmb", Explanation{CategoryAnalytics, RiskLow, "Legacy Google Analytics session marker."}},
	{"__utmz", Explanation{CategoryAnalytics, RiskMedium, "Legacy Google Analytics traffic source record."}},
	// Meta
	{"_fbp", Explanation{CategoryAdvertising, RiskHigh, "Meta pixel browser identifier used for ad delivery."}},
	{"_fbc", Explanation{CategoryAdvertising, RiskHigh, "Meta click identifier from an ad click."}},
	// Microsoft
	{"_uetsid", Explanation{CategoryAdvertising, RiskHigh, "Microsoft Advertising session identifier."}},
	{"_uetvid", Explanation{CategoryAdvertising, RiskHigh, "Microsoft Advertising visitor identifier."}},
	{"_clck", Explanation{CategoryAnalytics, RiskMedium, "Microsoft Clarity user identifier."}},
	{"_clsk", Explanation{CategoryAnalytics, RiskMedium, "Microsoft Clarity session stitching."}},
	{"muid", Explanation{CategoryTracking, RiskHigh, "Microsoft cross-site user identifier."}},
	// Session replay and product analytics
	{"_hjid", Explanation{CategoryAnalytics, RiskMedium, "Hotjar visitor identifier."}},
	{"_hjsession", Explanation{CategoryAnalytics, RiskMedium, "Hotjar session recording."}},
	{"ajs_anonymous_id", Explanation{CategoryAnalytics, RiskMedium, "Segment anonymous visitor identifier."}},
	{"ajs_user_id", Explanation{CategoryAnalytics, RiskHigh, "Segment identified user."}},
	{"_mixpanel", Explanation{CategoryAnalytics, RiskMedium, "Mixpanel analytics state."}},
	{"amplitude_id", Explanation{CategoryAnalytics, RiskMedium, "Amplitude device identifier."}},
	{"_pk_id", Explanation{CategoryAnalytics, RiskLow, "Matomo visitor identifier."}},
	// Cross-site tracking
	{"uuid2", Explanation{CategoryTracking, RiskHigh, "AppNexus cross-site identifier."}},
	{"personalization_id", Explanation{CategoryTracking, RiskHigh, "X cross-site personalization identifier."}},
	{"bcookie", Explanation{CategoryTracking, RiskHigh, "LinkedIn browser identifier."}},
	{"li_sugr", Explanation{CategoryTracking, RiskHigh, "LinkedIn probabilistic identifier."}},
	{"_ttp", Explanation{CategoryTracking, RiskHigh, "TikTok pixel identifier."}},
	{"_pin_unauth", Explanation{CategoryTracking, RiskHigh, "Pinterest unauthenticated visitor identifier."}},
	{"demdex", Explanation{CategoryTracking, RiskHigh, "Adobe Audience Manager identifier."}},
	// Essential
	{"sessionid", Explanation{CategoryEssential, RiskLow, "Keeps your signed-in session."}},
	{"phpsessid", Explanation{CategoryEssential, RiskLow, "PHP session identifier."}},
	{"jsessionid", Explanation{CategoryEssential, RiskLow, "Java servlet session identifier."}},
	{"asp.net_sessionid", Explanation{CategoryEssential, RiskLow, "ASP.NET session identifier."}},
	{"connect.sid", Explanation{CategoryEssential, RiskLow, "Express session identifier."}},
	{"csrftoken", Explanation{CategoryEssential, RiskLow, "Protects forms against cross-site request forgery."}},
	{"xsrf-token", Explanation{CategoryEssential, RiskLow, "Protects requests against cross-site request forgery."}},
	{"__cf_bm", Explanation{CategoryEssential, RiskLow, "Cloudflare bot management."}},
	{"cf_clearance", Explanation{CategoryEssential, RiskLow, "Cloudflare challenge clearance."}},
	{"__host-", Explanation{CategoryEssential, RiskLow, "Host-locked cookie set by the site itself."}},
	// Functional
	{"cookieconsent", Explanation{CategoryFunctional, RiskLow, "Remembers your cookie consent choice."}},
	{"optanonconsent", Explanation{CategoryFunctional, RiskLow, "OneTrust consent record."}},
	{"cookielawinfo", Explanation{CategoryFunctional, RiskLow, "Cookie consent record."}},
	{"euconsent", Explanation{CategoryFunctional, RiskMedium, "IAB consent string shared with ad vendors."}},
	{"locale", Explanation{CategoryFunctional, RiskLow, "Remembers your locale."}},
	{"lang", Explanation{CategoryFunctional, RiskLow, "Remembers your language."}},
	{"theme", Explanation{CategoryFunctional, RiskLow, "Remembers your display theme."}},
	{"timezone", Explanation{CategoryFunctional, RiskLow, "Remembers your time zone."}},
}

var knownCookiesByName = func() map[string]Explanation {
	byName := make(map[string]Explanation, len(knownCookies))
	for _, e := range knownCookies {
		byName[e.name] = e.explanation
	}
	return byName
}()
