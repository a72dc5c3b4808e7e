package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/types"
	"go.uber.org/zap"
)

// InterceptionSink receives partial lifecycle events from a request-interception feed.
type InterceptionSink interface {
	Begin(ctx context.Context, event BeginEvent) error
	RequestHeaders(ctx context.Context, event RequestHeadersEvent) error
	ResponseHeaders(ctx context.Context, event ResponseHeadersEvent) error
	Completed(ctx context.Context, event CompletedEvent) error
	TabNavigated(ctx context.Context, event TabNavigatedEvent) error
	TabClosed(ctx context.Context, event TabClosedEvent) error
}

// PanelSink receives fully formed requests from an inspection panel.
type PanelSink interface {
	RequestFinished(ctx context.Context, tabId int, request FinishedRequest) error
	PanelNavigated(ctx context.Context, tabId int, pageUrl string) error
	IngestExisting(ctx context.Context, tabId int, requests []FinishedRequest) error
}

// PageUrlResolver looks up the current top-level URL of a tab.
type PageUrlResolver interface {
	PageUrl(ctx context.Context, tabId int) (string, error)
}

type PageUrlResolverFunc func(ctx context.Context, tabId int) (string, error)

func (f PageUrlResolverFunc) PageUrl(ctx context.Context, tabId int) (string, error) {
	return f(ctx, tabId)
}

type result struct {
	value any
	err   error
}

type envelope struct {
	command Command
	reply   chan result
}

// Engine owns a Registry and applies commands to it one at a time on the goroutine
// running Run.
type Engine struct {
	registry *Registry
	resolver PageUrlResolver
	logger   *zap.Logger

	commands chan envelope
	done     chan struct{}
	stopOnce sync.Once
	pending  sync.WaitGroup
}

func NewEngine(registry *Registry, resolver PageUrlResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry(nil, logger)
	}
	return &Engine{
		registry: registry,
		resolver: resolver,
		logger:   logger,
		commands: make(chan envelope),
		done:     make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled. Continuations started by the loop are
// waited for before Run returns.
func (engine *Engine) Run(ctx context.Context) error {
	defer func() {
		engine.stopOnce.Do(func() { close(engine.done) })
		engine.pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-engine.commands:
			value, err := engine.apply(ctx, env.command)
			if env.reply != nil {
				env.reply <- result{value: value, err: err}
			}
		}
	}
}

func (engine *Engine) apply(ctx context.Context, command Command) (any, error) {
	value, err := engine.registry.Apply(command)
	if err != nil {
		if errors.Is(err, webRequestPrivacyErrors.ErrStaleContinuation) {
			engine.logger.Debug("Dropped stale continuation.", zap.String("command", fmt.Sprintf("%T", command)))
		}
		return value, err
	}

	if begin, ok := value.(BeginResult); ok && begin.NeedsPageUrl && engine.resolver != nil {
		event := command.(BeginEvent)
		engine.resolvePageUrl(ctx, event.TabId, event.RequestId, begin.Generation)
	}
	return value, nil
}

func (engine *Engine) resolvePageUrl(ctx context.Context, tabId int, requestId string, generation uint64) {
	engine.pending.Add(1)
	go func() {
		defer engine.pending.Done()

		pageUrl, err := engine.resolver.PageUrl(ctx, tabId)
		if err != nil {
			engine.logger.Debug(
				"Page url lookup failed.",
				zap.Int("tab_id", tabId),
				zap.String("request_id", requestId),
				zap.Error(err),
			)
			return
		}
		if pageUrl == "" {
			return
		}

		command := applyPageUrlCommand{TabId: tabId, RequestId: requestId, Generation: generation, PageUrl: pageUrl}
		select {
		case engine.commands <- envelope{command: command}:
		case <-ctx.Done():
		case <-engine.done:
		}
	}()
}

// Do submits command to the loop and waits for its result.
func (engine *Engine) Do(ctx context.Context, command Command) (any, error) {
	reply := make(chan result, 1)
	select {
	case engine.commands <- envelope{command: command, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-engine.done:
		return nil, webRequestPrivacyErrors.ErrEngineStopped
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (engine *Engine) Submit(ctx context.Context, command Command) error {
	_, err := engine.Do(ctx, command)
	return err
}

func (engine *Engine) Begin(ctx context.Context, event BeginEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) RequestHeaders(ctx context.Context, event RequestHeadersEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) ResponseHeaders(ctx context.Context, event ResponseHeadersEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) Completed(ctx context.Context, event CompletedEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) TabNavigated(ctx context.Context, event TabNavigatedEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) TabClosed(ctx context.Context, event TabClosedEvent) error {
	return engine.Submit(ctx, event)
}

func (engine *Engine) RequestFinished(ctx context.Context, tabId int, request FinishedRequest) error {
	return engine.Submit(ctx, RequestFinishedCommand{TabId: tabId, Request: request})
}

func (engine *Engine) PanelNavigated(ctx context.Context, tabId int, pageUrl string) error {
	return engine.Submit(ctx, PanelNavigatedEvent{TabId: tabId, Url: pageUrl})
}

func (engine *Engine) IngestExisting(ctx context.Context, tabId int, requests []FinishedRequest) error {
	return engine.Submit(ctx, IngestExistingCommand{TabId: tabId, Requests: requests})
}

func (engine *Engine) Snapshot(ctx context.Context, tabId int) (types.TabSnapshot, bool, error) {
	value, err := engine.Do(ctx, SnapshotQuery{TabId: tabId})
	if err != nil {
		return types.TabSnapshot{}, false, err
	}
	snapshot := value.(SnapshotResult)
	return snapshot.Snapshot, snapshot.Found, nil
}

func (engine *Engine) Clear(ctx context.Context, tabId int) (bool, error) {
	value, err := engine.Do(ctx, ClearTabCommand{TabId: tabId})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

func (engine *Engine) Search(ctx context.Context, tabId int, query string) ([]*types.NetworkRequestRecord, error) {
	value, err := engine.Do(ctx, SearchQuery{TabId: tabId, Query: query})
	if err != nil {
		return nil, err
	}
	return value.([]*types.NetworkRequestRecord), nil
}

func (engine *Engine) Tabs(ctx context.Context) ([]int, error) {
	value, err := engine.Do(ctx, TabsQuery{})
	if err != nil {
		return nil, err
	}
	return value.([]int), nil
}

func (engine *Engine) Record(ctx context.Context, tabId int, requestId string) (*types.NetworkRequestRecord, error) {
	value, err := engine.Do(ctx, RecordQuery{TabId: tabId, RequestId: requestId})
	if err != nil {
		return nil, err
	}
	return value.(*types.NetworkRequestRecord), nil
}

// FetchBody returns the response body of a record, retrieving it through the record's
// BodyFetcher when it has not been loaded yet. The fetch runs outside the loop; its result
// is stored only if the tab has not been reset in the meantime.
func (engine *Engine) FetchBody(ctx context.Context, tabId int, requestId string) (string, error) {
	value, err := engine.Do(ctx, bodyTargetQuery{TabId: tabId, RequestId: requestId})
	if err != nil {
		return "", err
	}
	target := value.(bodyTarget)
	if target.body != nil {
		return *target.body, nil
	}
	if target.fetcher == nil {
		return "", webRequestPrivacyErrors.ErrNoBodyFetcher
	}

	body, err := target.fetcher(ctx)
	if err != nil {
		return "", fmt.Errorf("body fetcher: %w", err)
	}

	command := applyBodyCommand{TabId: tabId, RequestId: requestId, Generation: target.generation, Body: body}
	if _, err := engine.Do(ctx, command); err != nil {
		return "", err
	}
	return body, nil
}

// LoadedRecord returns a copy of the record with its response body fetched when possible.
func (engine *Engine) LoadedRecord(ctx context.Context, tabId int, requestId string) (*types.NetworkRequestRecord, error) {
	if _, err := engine.FetchBody(ctx, tabId, requestId); err != nil && !errors.Is(err, webRequestPrivacyErrors.ErrNoBodyFetcher) {
		engine.logger.Debug(
			"Response body not loaded.",
			zap.Int("tab_id", tabId),
			zap.String("request_id", requestId),
			zap.Error(err),
		)
	}
	return engine.Record(ctx, tabId, requestId)
}
