package aggregator

import (
	"time"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

// Command is one unit of work applied to the Registry. The set of variants is
// closed: only types in this package implement it.
type Command interface {
	isCommand()
}

// Interception feed: partial lifecycle events, no bodies beyond what the host
// hands over at initiation.

type BeginEvent struct {
	RequestId string
	Url       string
	Method    string
	Type      types.ResourceType
	TabId     int
	Timestamp time.Time
	Body      *string
}

type RequestHeadersEvent struct {
	RequestId string
	TabId     int
	Headers   []*types.Header
}

// ResponseHeadersEvent carries the response head. HttpVersion, ServerIp and FromCache
// are optional.
type ResponseHeadersEvent struct {
	RequestId   string
	TabId       int
	Headers     []*types.Header
	HttpVersion string
	ServerIp    string
	FromCache   bool
}

type CompletedEvent struct {
	RequestId  string
	TabId      int
	StatusCode int
	Timestamp  time.Time
}

type TabNavigatedEvent struct {
	TabId int
	Url   string
}

type TabClosedEvent struct {
	TabId int
}

// Panel feed: fully formed records.

// FinishedRequest is a complete request/response pair. BodyFetcher, when set,
// retrieves the response body on demand.
type FinishedRequest struct {
	Id              string
	Url             string
	Method          string
	Type            types.ResourceType
	Status          int
	StartTime       time.Time
	Duration        time.Duration
	Size            *int64
	MimeType        string
	HttpVersion     string
	ServerIp        string
	FromCache       bool
	RequestHeaders  []*types.Header
	ResponseHeaders []*types.Header
	RequestBody     *string
	ResponseBody    *string
	BodyFetcher     types.BodyFetcher
}

type RequestFinishedCommand struct {
	TabId   int
	Request FinishedRequest
}

type PanelNavigatedEvent struct {
	TabId int
	Url   string
}

type IngestExistingCommand struct {
	TabId    int
	Requests []FinishedRequest
}

// Queries.

type SnapshotQuery struct {
	TabId int
}

type ClearTabCommand struct {
	TabId int
}

type SearchQuery struct {
	TabId int
	Query string
}

type TabsQuery struct{}

type RecordQuery struct {
	TabId     int
	RequestId string
}

// Continuations re-entering the loop after an asynchronous step.

type applyPageUrlCommand struct {
	TabId      int
	RequestId  string
	Generation uint64
	PageUrl    string
}

type bodyTargetQuery struct {
	TabId     int
	RequestId string
}

type applyBodyCommand struct {
	TabId      int
	RequestId  string
	Generation uint64
	Body       string
}

func (BeginEvent) isCommand()             {}
func (RequestHeadersEvent) isCommand()    {}
func (ResponseHeadersEvent) isCommand()   {}
func (CompletedEvent) isCommand()         {}
func (TabNavigatedEvent) isCommand()      {}
func (TabClosedEvent) isCommand()         {}
func (RequestFinishedCommand) isCommand() {}
func (PanelNavigatedEvent) isCommand()    {}
func (IngestExistingCommand) isCommand()  {}
func (SnapshotQuery) isCommand()          {}
func (ClearTabCommand) isCommand()        {}
func (SearchQuery) isCommand()            {}
func (TabsQuery) isCommand()              {}
func (RecordQuery) isCommand()            {}
func (applyPageUrlCommand) isCommand()    {}
func (bodyTargetQuery) isCommand()        {}
func (applyBodyCommand) isCommand()       {}

type BeginResult struct {
	Record       *types.NetworkRequestRecord
	Generation   uint64
	NeedsPageUrl bool
}

type SnapshotResult struct {
	Snapshot types.TabSnapshot
	Found    bool
}

type bodyTarget struct {
	fetcher    types.BodyFetcher
	generation uint64
	body       *string
}
