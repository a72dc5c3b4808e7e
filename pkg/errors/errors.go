package errors

import "errors"

var (
	ErrNilEcsBase           = errors.New("nil ecs base")
	ErrNilEcsEvent          = errors.New("nil ecs event")
	ErrNilEcsHttp           = errors.New("nil ecs http")
	ErrNilEcsHttpRequest    = errors.New("nil ecs http request")
	ErrNilEcsNetwork        = errors.New("nil ecs network")
	ErrNilEcsServer         = errors.New("nil ecs server")
	ErrNilWebRequestLogging = errors.New("nil web request logging")
	ErrUnmatchedHttpVersion = errors.New("unmatched http version")
	ErrNilRecord            = errors.New("nil network request record")

	ErrMissingTabId      = errors.New("missing tab id")
	ErrInvalidTabId      = errors.New("invalid tab id")
	ErrUnknownSession    = errors.New("unknown tab session")
	ErrUnknownRequest    = errors.New("unknown request")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrUnknownEvent      = errors.New("unknown web request event")
	ErrNilDetails        = errors.New("nil web request details")
	ErrNoBodyFetcher     = errors.New("no body fetch capability")
	ErrStaleContinuation = errors.New("stale continuation")
	ErrEngineStopped     = errors.New("engine stopped")
	ErrNilHarLog         = errors.New("nil har log")
	ErrNonLoopbackListen = errors.New("listen address is not a loopback address")
)
