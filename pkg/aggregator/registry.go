package aggregator

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vphpersson/web_request_privacy/pkg/domain"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/tracker"
	"github.com/vphpersson/web_request_privacy/pkg/types"
	"go.uber.org/zap"
)

// TabSession holds the records observed for one browser tab since its last reset.
type TabSession struct {
	tabId      int
	pageUrl    string
	pageDomain string
	generation uint64
	records    []*types.NetworkRequestRecord
	byId       map[string]*types.NetworkRequestRecord
}

func newTabSession(tabId int) *TabSession {
	return &TabSession{tabId: tabId, byId: make(map[string]*types.NetworkRequestRecord)}
}

func (session *TabSession) TabId() int { return session.tabId }
func (session *TabSession) PageUrl() string { return session.pageUrl }
func (session *TabSession) PageDomain() string { return session.pageDomain }
func (session *TabSession) Generation() uint64 { return session.generation }
func (session *TabSession) Len() int { return len(session.records) }

func (session *TabSession) reset() {
	session.records = nil
	session.byId = make(map[string]*types.NetworkRequestRecord)
	session.generation++
}

func (session *TabSession) setPageUrl(pageUrl string) {
	session.pageUrl = pageUrl
	session.pageDomain = domain.Of(pageUrl)
}

func (session *TabSession) put(record *types.NetworkRequestRecord) {
	if existing, ok := session.byId[record.Id]; ok {
		index := slices.Index(session.records, existing)
		if index >= 0 {
			session.records[index] = record
		}
	} else {
		session.records = append(session.records, record)
	}
	session.byId[record.Id] = record
}

// Registry owns every TabSession. It is not safe for concurrent use; the Engine
// serializes access to it.
type Registry struct {
	sessions map[int]*TabSession
	trackers *tracker.Matcher
	logger   *zap.Logger
}

func NewRegistry(trackers *tracker.Matcher, logger *zap.Logger) *Registry {
	if trackers == nil {
		trackers = tracker.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sessions: make(map[int]*TabSession), trackers: trackers, logger: logger}
}

func (registry *Registry) Session(tabId int) (*TabSession, bool) {
	session, ok := registry.sessions[tabId]
	return session, ok
}

// Ensure returns the session for tabId, creating it on first use.
func (registry *Registry) Ensure(tabId int) *TabSession {
	session, ok := registry.sessions[tabId]
	if !ok {
		session = newTabSession(tabId)
		registry.sessions[tabId] = session
	}
	return session
}

// Navigate discards the tab's records and starts a new generation for pageUrl.
func (registry *Registry) Navigate(tabId int, pageUrl string) *TabSession {
	session := registry.Ensure(tabId)
	session.reset()
	session.setPageUrl(pageUrl)
	registry.logger.Debug(
		"Tab session reset on navigation.",
		zap.Int("tab_id", tabId),
		zap.String("page_url", pageUrl),
		zap.Uint64("generation", session.generation),
	)
	return session
}

func (registry *Registry) Close(tabId int) bool {
	if _, ok := registry.sessions[tabId]; !ok {
		return false
	}
	delete(registry.sessions, tabId)
	registry.logger.Debug("Tab session closed.", zap.Int("tab_id", tabId))
	return true
}

// Clear discards the tab's records but keeps its page URL.
func (registry *Registry) Clear(tabId int) bool {
	session, ok := registry.sessions[tabId]
	if !ok {
		return false
	}
	session.reset()
	registry.logger.Debug("Tab session cleared.", zap.Int("tab_id", tabId))
	return true
}

func (registry *Registry) Tabs() []int {
	tabIds := make([]int, 0, len(registry.sessions))
	for tabId := range registry.sessions {
		tabIds = append(tabIds, tabId)
	}
	slices.Sort(tabIds)
	return tabIds
}

func (registry *Registry) classify(record *types.NetworkRequestRecord, session *TabSession) {
	record.Domain = domain.Of(record.Url)
	record.IsTracker = registry.trackers.IsTracker(domain.Hostname(record.Url))
	record.IsThirdParty = session.pageUrl != "" && domain.IsThirdParty(record.Url, session.pageUrl)
}

func (registry *Registry) dropped(event string, tabId int, requestId string) {
	registry.logger.Debug(
		"Dropped event for unknown request.",
		zap.String("event", event),
		zap.Int("tab_id", tabId),
		zap.String("request_id", requestId),
	)
}

func (registry *Registry) lookup(tabId int, requestId string) *types.NetworkRequestRecord {
	session, ok := registry.sessions[tabId]
	if !ok {
		return nil
	}
	return session.byId[requestId]
}

// Begin records a new request. Negative tab ids belong to no tab and are ignored.
func (registry *Registry) Begin(event BeginEvent) BeginResult {
	if event.TabId < 0 || event.RequestId == "" {
		return BeginResult{}
	}

	session := registry.Ensure(event.TabId)

	if existing, ok := session.byId[event.RequestId]; ok {
		if existing.Completed() {
			registry.logger.Debug(
				"Ignored begin for completed request.",
				zap.Int("tab_id", event.TabId),
				zap.String("request_id", event.RequestId),
			)
			return BeginResult{Record: existing, Generation: session.generation}
		}
		// A redirect reuses the request id with a new URL.
		existing.Url = event.Url
		if event.Method != "" {
			existing.Method = event.Method
		}
		registry.classify(existing, session)
		return BeginResult{
			Record:       existing,
			Generation:   session.generation,
			NeedsPageUrl: session.pageUrl == "",
		}
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	resourceType := event.Type
	if resourceType == "" {
		resourceType = types.ResourceTypeOther
	}

	record := &types.NetworkRequestRecord{
		Id:          event.RequestId,
		Url:         event.Url,
		Method:      event.Method,
		Type:        resourceType,
		StartTime:   timestamp,
		RequestBody: event.Body,
		State:       types.StateInitiated,
		Source:      types.SourceInterception,
	}
	registry.classify(record, session)
	session.put(record)

	return BeginResult{Record: record, Generation: session.generation, NeedsPageUrl: session.pageUrl == ""}
}

func (registry *Registry) RequestHeaders(event RequestHeadersEvent) bool {
	record := registry.lookup(event.TabId, event.RequestId)
	if record == nil {
		registry.dropped("request_headers", event.TabId, event.RequestId)
		return false
	}
	record.RequestHeaders = types.CloneHeaders(event.Headers)
	if record.State == types.StateInitiated {
		record.State = types.StateHeadersRecorded
	}
	return true
}

func (registry *Registry) ResponseHeaders(event ResponseHeadersEvent) bool {
	record := registry.lookup(event.TabId, event.RequestId)
	if record == nil {
		registry.dropped("response_headers", event.TabId, event.RequestId)
		return false
	}
	record.ResponseHeaders = types.CloneHeaders(event.Headers)
	if mimeType := mimeTypeOf(record.ResponseHeaders); mimeType != "" {
		record.MimeType = mimeType
	}
	if size, ok := contentLengthOf(record.ResponseHeaders); ok {
		record.Size = &size
	}
	if event.HttpVersion != "" {
		record.HttpVersion = event.HttpVersion
	}
	if event.ServerIp != "" {
		record.ServerIp = event.ServerIp
	}
	record.FromCache = record.FromCache || event.FromCache
	record.State = types.StateHeadersEnriched
	return true
}

func (registry *Registry) Completed(event CompletedEvent) bool {
	record := registry.lookup(event.TabId, event.RequestId)
	if record == nil {
		registry.dropped("completed", event.TabId, event.RequestId)
		return false
	}
	if record.Completed() {
		return true
	}

	if event.StatusCode > 0 {
		record.Status = event.StatusCode
	}

	endTime := event.Timestamp
	if endTime.IsZero() {
		endTime = time.Now()
	}
	if endTime.Before(record.StartTime) {
		endTime = record.StartTime
	}
	durationMs := endTime.Sub(record.StartTime).Milliseconds()
	record.EndTime = &endTime
	record.DurationMs = &durationMs
	record.State = types.StateCompleted
	return true
}

func (registry *Registry) TabNavigated(event TabNavigatedEvent) {
	registry.Navigate(event.TabId, event.Url)
}

func (registry *Registry) TabClosed(event TabClosedEvent) {
	registry.Close(event.TabId)
}

// RequestFinished ingests a fully formed request, replacing any record with the same id.
func (registry *Registry) RequestFinished(tabId int, request FinishedRequest) *types.NetworkRequestRecord {
	if tabId < 0 {
		return nil
	}
	session := registry.Ensure(tabId)

	id := request.Id
	if id == "" {
		id = uuid.NewString()
	}
	resourceType := request.Type
	if resourceType == "" {
		resourceType = types.ResourceTypeOther
	}
	startTime := request.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}
	duration := max(request.Duration, 0)
	endTime := startTime.Add(duration)
	durationMs := duration.Milliseconds()

	record := &types.NetworkRequestRecord{
		Id:              id,
		Url:             request.Url,
		Method:          request.Method,
		Type:            resourceType,
		Status:          request.Status,
		StartTime:       startTime,
		EndTime:         &endTime,
		DurationMs:      &durationMs,
		Size:            request.Size,
		MimeType:        request.MimeType,
		HttpVersion:     request.HttpVersion,
		ServerIp:        request.ServerIp,
		FromCache:       request.FromCache,
		RequestHeaders:  types.CloneHeaders(request.RequestHeaders),
		ResponseHeaders: types.CloneHeaders(request.ResponseHeaders),
		RequestBody:     request.RequestBody,
		ResponseBody:    request.ResponseBody,
		State:           types.StateCompleted,
		Source:          types.SourcePanel,
		BodyFetcher:     request.BodyFetcher,
	}
	if record.MimeType == "" {
		record.MimeType = mimeTypeOf(record.ResponseHeaders)
	}
	if record.Size == nil {
		if size, ok := contentLengthOf(record.ResponseHeaders); ok {
			record.Size = &size
		}
	}
	registry.classify(record, session)
	session.put(record)
	return record
}

func (registry *Registry) PanelNavigated(tabId int, pageUrl string) {
	registry.Navigate(tabId, pageUrl)
}

func (registry *Registry) IngestExisting(tabId int, requests []FinishedRequest) []*types.NetworkRequestRecord {
	var records []*types.NetworkRequestRecord
	for _, request := range requests {
		if record := registry.RequestFinished(tabId, request); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// Snapshot returns copies of the tab's records with freshly derived statistics.
func (registry *Registry) Snapshot(tabId int) (types.TabSnapshot, bool) {
	session, ok := registry.sessions[tabId]
	if !ok {
		return types.TabSnapshot{}, false
	}
	records := make([]*types.NetworkRequestRecord, 0, len(session.records))
	for _, record := range session.records {
		records = append(records, record.Clone())
	}
	return types.TabSnapshot{
		TabId:      tabId,
		PageUrl:    session.pageUrl,
		PageDomain: session.pageDomain,
		Records:    records,
		Stats:      DeriveStats(session.records),
	}, true
}

func (registry *Registry) Record(tabId int, requestId string) (*types.NetworkRequestRecord, error) {
	session, ok := registry.sessions[tabId]
	if !ok {
		return nil, webRequestPrivacyErrors.ErrUnknownSession
	}
	record, ok := session.byId[requestId]
	if !ok {
		return nil, webRequestPrivacyErrors.ErrUnknownRequest
	}
	return record.Clone(), nil
}

// Search returns copies of the records whose URL, method, MIME type, header values or
// loaded bodies contain query, compared case-insensitively.
func (registry *Registry) Search(tabId int, query string) []*types.NetworkRequestRecord {
	session, ok := registry.sessions[tabId]
	if !ok {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	var matches []*types.NetworkRequestRecord
	for _, record := range session.records {
		if needle == "" || recordContains(record, needle) {
			matches = append(matches, record.Clone())
		}
	}
	return matches
}

func recordContains(record *types.NetworkRequestRecord, needle string) bool {
	contains := func(s string) bool {
		return s != "" && strings.Contains(strings.ToLower(s), needle)
	}
	if contains(record.Url) || contains(record.Method) || contains(record.MimeType) {
		return true
	}
	for _, headers := range [][]*types.Header{record.RequestHeaders, record.ResponseHeaders} {
		for _, header := range headers {
			if header != nil && contains(header.Value) {
				return true
			}
		}
	}
	for _, body := range []*string{record.RequestBody, record.ResponseBody} {
		if body != nil && contains(*body) {
			return true
		}
	}
	return false
}

func (registry *Registry) applyPageUrl(command applyPageUrlCommand) error {
	session, ok := registry.sessions[command.TabId]
	if !ok || session.generation != command.Generation {
		return webRequestPrivacyErrors.ErrStaleContinuation
	}
	record, ok := session.byId[command.RequestId]
	if !ok {
		return webRequestPrivacyErrors.ErrStaleContinuation
	}
	if session.pageUrl == "" && command.PageUrl != "" {
		session.setPageUrl(command.PageUrl)
	}
	registry.classify(record, session)
	return nil
}

func (registry *Registry) bodyTarget(tabId int, requestId string) (bodyTarget, error) {
	session, ok := registry.sessions[tabId]
	if !ok {
		return bodyTarget{}, webRequestPrivacyErrors.ErrUnknownSession
	}
	record, ok := session.byId[requestId]
	if !ok {
		return bodyTarget{}, webRequestPrivacyErrors.ErrUnknownRequest
	}
	return bodyTarget{
		fetcher:    record.BodyFetcher,
		generation: session.generation,
		body:       record.Clone().ResponseBody,
	}, nil
}

func (registry *Registry) applyBody(command applyBodyCommand) error {
	session, ok := registry.sessions[command.TabId]
	if !ok || session.generation != command.Generation {
		return webRequestPrivacyErrors.ErrStaleContinuation
	}
	record, ok := session.byId[command.RequestId]
	if !ok {
		return webRequestPrivacyErrors.ErrStaleContinuation
	}
	body := command.Body
	record.ResponseBody = &body
	return nil
}

// Apply dispatches command to the matching handler. Records in the result are
// clones, so callers never share state with the owning goroutine.
func (registry *Registry) Apply(command Command) (any, error) {
	switch c := command.(type) {
	case BeginEvent:
		result := registry.Begin(c)
		result.Record = result.Record.Clone()
		return result, nil
	case RequestHeadersEvent:
		return registry.RequestHeaders(c), nil
	case ResponseHeadersEvent:
		return registry.ResponseHeaders(c), nil
	case CompletedEvent:
		return registry.Completed(c), nil
	case TabNavigatedEvent:
		registry.TabNavigated(c)
		return nil, nil
	case TabClosedEvent:
		registry.TabClosed(c)
		return nil, nil
	case RequestFinishedCommand:
		return registry.RequestFinished(c.TabId, c.Request).Clone(), nil
	case PanelNavigatedEvent:
		registry.PanelNavigated(c.TabId, c.Url)
		return nil, nil
	case IngestExistingCommand:
		records := registry.IngestExisting(c.TabId, c.Requests)
		for i, record := range records {
			records[i] = record.Clone()
		}
		return records, nil
	case SnapshotQuery:
		snapshot, found := registry.Snapshot(c.TabId)
		return SnapshotResult{Snapshot: snapshot, Found: found}, nil
	case ClearTabCommand:
		return registry.Clear(c.TabId), nil
	case SearchQuery:
		return registry.Search(c.TabId, c.Query), nil
	case TabsQuery:
		return registry.Tabs(), nil
	case RecordQuery:
		return registry.Record(c.TabId, c.RequestId)
	case applyPageUrlCommand:
		return nil, registry.applyPageUrl(c)
	case bodyTargetQuery:
		return registry.bodyTarget(c.TabId, c.RequestId)
	case applyBodyCommand:
		return nil, registry.applyBody(c)
	default:
		return nil, webRequestPrivacyErrors.ErrUnknownCommand
	}
}

// DeriveStats computes tab statistics from records. The result is never cached.
func DeriveStats(records []*types.NetworkRequestRecord) types.TabStats {
	stats := types.TabStats{TrackerDomains: []string{}, UniqueDomains: []string{}}
	seenDomains := make(map[string]struct{})
	seenTrackers := make(map[string]struct{})

	for _, record := range records {
		if record == nil {
			continue
		}
		stats.TotalRequests++
		if record.IsThirdParty {
			stats.ThirdPartyCount++
		} else {
			stats.FirstPartyCount++
		}

		if record.Domain != "" {
			if _, ok := seenDomains[record.Domain]; !ok {
				seenDomains[record.Domain] = struct{}{}
				stats.UniqueDomains = append(stats.UniqueDomains, record.Domain)
			}
		}

		if record.IsTracker {
			stats.TrackerCount++
			if record.Domain != "" {
				if _, ok := seenTrackers[record.Domain]; !ok {
					seenTrackers[record.Domain] = struct{}{}
					stats.TrackerDomains = append(stats.TrackerDomains, record.Domain)
				}
			}
		}
	}
	return stats
}

func mimeTypeOf(headers []*types.Header) string {
	values := types.HeaderValues(headers, "content-type")
	if len(values) == 0 {
		return ""
	}
	mimeType, _, _ := strings.Cut(values[0], ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func contentLengthOf(headers []*types.Header) (int64, bool) {
	values := types.HeaderValues(headers, "content-length")
	if len(values) == 0 {
		return 0, false
	}
	size, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}
