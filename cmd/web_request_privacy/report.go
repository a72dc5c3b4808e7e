package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vphpersson/web_request_privacy/pkg/aggregator"
	"github.com/vphpersson/web_request_privacy/pkg/cookie"
	"github.com/vphpersson/web_request_privacy/pkg/pii"
	"github.com/vphpersson/web_request_privacy/pkg/score"
	"github.com/vphpersson/web_request_privacy/pkg/types"
	"github.com/vphpersson/web_request_privacy/pkg/web_request_logging"
)

type requestFinding struct {
	RequestId string                  `json:"requestId"`
	Url       string                  `json:"url"`
	Pii       *pii.Result             `json:"pii,omitempty"`
	Cookies   map[cookie.Category]int `json:"cookies,omitempty"`
}

type tabReport struct {
	TabId    int              `json:"tabId"`
	PageUrl  string           `json:"pageUrl"`
	Stats    types.TabStats   `json:"stats"`
	Score    score.Result     `json:"score"`
	Findings []requestFinding `json:"findings"`
}

// buildReport scores a tab and collects the requests carrying PII or cookies. Response
// bodies are fetched for the PII scan when the feed made them available.
func buildReport(ctx context.Context, engine *aggregator.Engine, detector *pii.Detector, tabId int) (*tabReport, error) {
	snapshot, _, err := engine.Snapshot(ctx, tabId)
	if err != nil {
		return nil, fmt.Errorf("engine snapshot: %w", err)
	}

	report := &tabReport{
		TabId:    tabId,
		PageUrl:  snapshot.PageUrl,
		Stats:    snapshot.Stats,
		Score:    score.Calculate(snapshot.Stats),
		Findings: make([]requestFinding, 0),
	}

	for _, record := range snapshot.Records {
		loaded, err := engine.LoadedRecord(ctx, tabId, record.Id)
		if err != nil {
			return nil, fmt.Errorf("engine loaded record: %w", err)
		}

		finding := requestFinding{RequestId: loaded.Id, Url: loaded.Url}
		if result := detector.ScanRecord(loaded); len(result.Matches) > 0 {
			finding.Pii = &result
		}
		if cookies := cookie.Analyze(loaded.RequestHeaders, loaded.ResponseHeaders); len(cookies.Counts) > 0 {
			finding.Cookies = cookies.Counts
		}
		if finding.Pii != nil || finding.Cookies != nil {
			report.Findings = append(report.Findings, finding)
		}
	}

	return report, nil
}

func writeIndentedJSON(writer io.Writer, v any) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// writeEcsDocuments writes one ECS document per line.
func writeEcsDocuments(ctx context.Context, writer io.Writer, engine *aggregator.Engine, tabId int) error {
	snapshot, _, err := engine.Snapshot(ctx, tabId)
	if err != nil {
		return fmt.Errorf("engine snapshot: %w", err)
	}

	documents, err := web_request_logging.MakeEcsDocuments(&snapshot)
	if err != nil {
		return fmt.Errorf("make ecs documents: %w", err)
	}

	encoder := json.NewEncoder(writer)
	for _, document := range documents {
		if err := encoder.Encode(document); err != nil {
			return fmt.Errorf("json encode: %w", err)
		}
	}
	return nil
}
