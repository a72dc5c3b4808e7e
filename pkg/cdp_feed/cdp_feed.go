// Package cdp_feed observes a live browser page over the Chrome DevTools Protocol and
// feeds its network activity into the aggregator.
package cdp_feed

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_feed"
	"go.uber.org/zap"
)

// Sink accepts commands from both feed paths.
type Sink interface {
	aggregator.InterceptionSink
	aggregator.PanelSink
}

func Dispatch(ctx context.Context, sink Sink, command aggregator.Command) error {
	switch c := command.(type) {
	case aggregator.RequestFinishedCommand:
		return sink.RequestFinished(ctx, c.TabId, c.Request)
	case aggregator.PanelNavigatedEvent:
		return sink.PanelNavigated(ctx, c.TabId, c.Url)
	case aggregator.IngestExistingCommand:
		return sink.IngestExisting(ctx, c.TabId, c.Requests)
	default:
		return web_request_feed.Dispatch(ctx, sink, command)
	}
}

// Connect attaches to the browser at controlUrl, launching a local one when
// controlUrl is empty.
func Connect(ctx context.Context, controlUrl string, headless bool) (*rod.Browser, error) {
	if controlUrl == "" {
		launchedUrl, err := launcher.New().Headless(headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launcher launch: %w", err)
		}
		controlUrl = launchedUrl
	}

	browser := rod.New().ControlURL(controlUrl).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser connect: %w", err)
	}
	return browser, nil
}

// PageResolver resolves a tab's page URL from the page's target info.
type PageResolver struct {
	Page *rod.Page
}

func (resolver *PageResolver) PageUrl(ctx context.Context, _ int) (string, error) {
	info, err := resolver.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

type Options struct {
	TabId        int
	FullFidelity bool
	// Url, when set, is navigated to once the event subscription is in place.
	Url          string
	Logger       *zap.Logger
}

// Watch enables network events on page and forwards them to sink until ctx is done.
func Watch(ctx context.Context, page *rod.Page, sink Sink, options Options) error {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}

	var bodyFetchers BodyFetcherFactory
	if options.FullFidelity {
		bodyFetchers = ResponseBodyFetchers(func(ctx context.Context) proto.Client { return page.Context(ctx) })
	}
	translator := NewTranslator(options.TabId, options.FullFidelity, bodyFetchers)

	forward := func(commands []aggregator.Command) {
		for _, command := range commands {
			if err := Dispatch(ctx, sink, command); err != nil {
				logger.Debug("Dropped devtools event.", zap.String("command", fmt.Sprintf("%T", command)), zap.Error(err))
			}
		}
	}

	wait := page.Context(ctx).EachEvent(
		func(event *proto.PageFrameNavigated) { forward(translator.FrameNavigated(event)) },
		func(event *proto.NetworkRequestWillBeSent) { forward(translator.RequestWillBeSent(event)) },
		func(event *proto.NetworkResponseReceived) { forward(translator.ResponseReceived(event)) },
		func(event *proto.NetworkLoadingFinished) { forward(translator.LoadingFinished(event)) },
		func(event *proto.NetworkLoadingFailed) { forward(translator.LoadingFailed(event)) },
	)
	if options.Url != "" {
		if err := page.Context(ctx).Navigate(options.Url); err != nil {
			return fmt.Errorf("page navigate: %w", err)
		}
	}
	wait()

	return ctx.Err()
}
