// Package api exposes the aggregator and the pure analyzers over a loopback HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/cookie"
	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/explain"
	"github.com/vphpersson/web_request_privacy/pkg/har"
	"github.com/vphpersson/web_request_privacy/pkg/logging"
	"github.com/vphpersson/web_request_privacy/pkg/pii"
	"github.com/vphpersson/web_request_privacy/pkg/types"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_feed"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_logging"
	"go.uber.org/zap"
)

const maxBodySize = 32 << 20

type Server struct {
	engine   *aggregator.Engine
	detector *pii.Detector
	logger   *zap.Logger
}

func NewServer(engine *aggregator.Engine, detector *pii.Detector, logger *zap.Logger) *Server {
	if detector == nil {
		detector = pii.NewDetector(pii.DefaultMaxScanBytes)
	}
	return &Server{engine: engine, detector: detector, logger: logging.OrNop(logger)}
}

type RequestDetails struct {
	Record       *types.NetworkRequestRecord `json:"record"`
	Explanations *explain.RecordExplanations `json:"explanations"`
}

type IngestResult struct {
	Ingested int `json:"ingested"`
}

func (server *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(server.logger))

	router.Get("/health", server.handleHealth)
	router.Get("/tabs", server.handleTabs)
	router.Post("/events", server.handleEvent)
	router.Post("/messages", server.handleMessage)

	router.Route("/tabs/{tabId}", func(router chi.Router) {
		router.Get("/", server.handleTabData)
		router.Delete("/", server.handleClearTab)
		router.Get("/score", server.handleScore)
		router.Get("/search", server.handleSearch)
		router.Get("/ecs", server.handleEcs)
		router.Post("/har", server.handleHar)
		router.Get("/requests/{requestId}", server.handleRequest)
		router.Get("/requests/{requestId}/pii", server.handlePii)
		router.Get("/requests/{requestId}/cookies", server.handleCookies)
	})

	return router
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(wrapped, r)
			logger.Debug(
				"Handled request.",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.Status()),
				zap.Int("bytes", wrapped.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, aggregator.Response{Success: false, Message: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, webRequestPrivacyErrors.ErrUnknownSession), errors.Is(err, webRequestPrivacyErrors.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, webRequestPrivacyErrors.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseTabId(r *http.Request) (int, error) {
	rawTabId := chi.URLParam(r, "tabId")
	if rawTabId == "" {
		return 0, webRequestPrivacyErrors.ErrMissingTabId
	}
	tabId, err := strconv.Atoi(rawTabId)
	if err != nil || tabId < 0 {
		return 0, fmt.Errorf("%w: %q", webRequestPrivacyErrors.ErrInvalidTabId, rawTabId)
	}
	return tabId, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("io read all: %w", err)
	}
	return data, nil
}

func (server *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Message: "ok"})
}

func (server *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	tabIds, err := server.engine.Tabs(r.Context())
	if err != nil {
		writeFailure(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: tabIds})
}

func (server *Server) handleTabMessage(w http.ResponseWriter, r *http.Request, build func(tabId *int) aggregator.Message) {
	tabId, err := parseTabId(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, server.engine.HandleMessage(r.Context(), build(&tabId)))
}

func (server *Server) handleTabData(w http.ResponseWriter, r *http.Request) {
	server.handleTabMessage(w, r, func(tabId *int) aggregator.Message { return aggregator.GetTabData{TabId: tabId} })
}

func (server *Server) handleClearTab(w http.ResponseWriter, r *http.Request) {
	server.handleTabMessage(w, r, func(tabId *int) aggregator.Message { return aggregator.ClearTabData{TabId: tabId} })
}

func (server *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	server.handleTabMessage(w, r, func(tabId *int) aggregator.Message { return aggregator.GetPrivacyScore{TabId: tabId} })
}

func (server *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tabId, err := parseTabId(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	records, err := server.engine.Search(r.Context(), tabId, r.URL.Query().Get("q"))
	if err != nil {
		writeFailure(w, statusOf(err), err)
		return
	}
	if records == nil {
		records = make([]*types.NetworkRequestRecord, 0)
	}
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: records})
}

func (server *Server) handleEcs(w http.ResponseWriter, r *http.Request) {
	tabId, err := parseTabId(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	snapshot, found, err := server.engine.Snapshot(r.Context(), tabId)
	if err != nil {
		writeFailure(w, statusOf(err), err)
		return
	}
	if !found {
		writeFailure(w, http.StatusNotFound, fmt.Errorf("%w: %d", webRequestPrivacyErrors.ErrUnknownSession, tabId))
		return
	}

	documents, err := web_request_logging.MakeEcsDocuments(&snapshot)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, fmt.Errorf("make ecs documents: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: documents})
}

func (server *Server) handleHar(w http.ResponseWriter, r *http.Request) {
	tabId, err := parseTabId(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	log, err := har.Load(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Errorf("har load: %w", err))
		return
	}

	if err := har.Ingest(r.Context(), server.engine, tabId, log); err != nil {
		writeFailure(w, statusOf(err), fmt.Errorf("har ingest: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: IngestResult{Ingested: len(log.FinishedRequests())}})
}

func (server *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	record, ok := server.loadRecord(w, r, false)
	if !ok {
		return
	}
	writeJSON(
		w,
		http.StatusOK,
		aggregator.Response{Success: true, Data: RequestDetails{Record: record, Explanations: explain.Record(record)}},
	)
}

func (server *Server) handlePii(w http.ResponseWriter, r *http.Request) {
	record, ok := server.loadRecord(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: server.detector.ScanRecord(record)})
}

func (server *Server) handleCookies(w http.ResponseWriter, r *http.Request) {
	record, ok := server.loadRecord(w, r, false)
	if !ok {
		return
	}
	report := cookie.Analyze(record.RequestHeaders, record.ResponseHeaders)
	writeJSON(w, http.StatusOK, aggregator.Response{Success: true, Data: report})
}

// loadRecord writes a failure response itself and reports false when the record cannot
// be returned. With withBody, the response body is fetched first when possible.
func (server *Server) loadRecord(w http.ResponseWriter, r *http.Request, withBody bool) (*types.NetworkRequestRecord, bool) {
	tabId, err := parseTabId(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return nil, false
	}
	requestId := chi.URLParam(r, "requestId")

	var record *types.NetworkRequestRecord
	if withBody {
		record, err = server.engine.LoadedRecord(r.Context(), tabId, requestId)
	} else {
		record, err = server.engine.Record(r.Context(), tabId, requestId)
	}
	if err != nil {
		writeFailure(w, statusOf(err), err)
		return nil, false
	}
	return record, true
}

func (server *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	command, err := web_request_feed.Decode(data)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Errorf("web request feed decode: %w", err))
		return
	}
	if command != nil {
		if err := web_request_feed.Dispatch(r.Context(), server.engine, command); err != nil {
			writeFailure(w, statusOf(err), fmt.Errorf("web request feed dispatch: %w", err))
			return
		}
	}
	writeJSON(w, http.StatusAccepted, aggregator.Response{Success: true})
}

func (server *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	message, err := aggregator.DecodeMessage(data)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}

	if err := aggregator.ValidateMessage(message); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, server.engine.HandleMessage(r.Context(), message))
}
