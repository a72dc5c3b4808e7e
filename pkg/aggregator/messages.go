package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/score"
	"github.com/vphpersson/web_request_privacy/pkg/types"
)

const (
	MessageTypeGetTabData      = "GET_TAB_DATA"
	MessageTypeClearTabData    = "CLEAR_TAB_DATA"
	MessageTypeGetPrivacyScore = "GET_PRIVACY_SCORE"
)

// Message is a request from the UI collaborator.
type Message interface {
	isMessage()
	tabId() *int
}

type GetTabData struct {
	TabId *int
}

type ClearTabData struct {
	TabId *int
}

type GetPrivacyScore struct {
	TabId *int
}

func (GetTabData) isMessage()      {}
func (ClearTabData) isMessage()    {}
func (GetPrivacyScore) isMessage() {}

func (m GetTabData) tabId() *int      { return m.TabId }
func (m ClearTabData) tabId() *int    { return m.TabId }
func (m GetPrivacyScore) tabId() *int { return m.TabId }

type messageEnvelope struct {
	Type  string `json:"type"`
	TabId *int   `json:"tabId,omitempty"`
}

func DecodeMessage(data []byte) (Message, error) {
	var messageEnvelope messageEnvelope
	if err := json.Unmarshal(data, &messageEnvelope); err != nil {
		return nil, fmt.Errorf("json unmarshal (message envelope): %w", err)
	}

	switch messageEnvelope.Type {
	case MessageTypeGetTabData:
		return GetTabData{TabId: messageEnvelope.TabId}, nil
	case MessageTypeClearTabData:
		return ClearTabData{TabId: messageEnvelope.TabId}, nil
	case MessageTypeGetPrivacyScore:
		return GetPrivacyScore{TabId: messageEnvelope.TabId}, nil
	default:
		return nil, fmt.Errorf("%w: %q", webRequestPrivacyErrors.ErrUnknownMessage, messageEnvelope.Type)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type TabData struct {
	Snapshot types.TabSnapshot `json:"snapshot"`
	Score    score.Result      `json:"score"`
}

func failure(err error) Response {
	return Response{Success: false, Message: err.Error()}
}

// ValidateMessage reports the caller-contract violation of message, if any.
func ValidateMessage(message Message) error {
	if message == nil {
		return webRequestPrivacyErrors.ErrUnknownMessage
	}
	if message.tabId() == nil {
		return webRequestPrivacyErrors.ErrMissingTabId
	}
	return nil
}

// HandleMessage answers a UI message. Contract violations, such as a missing tab id, are
// reported in the Response rather than as an error.
func (engine *Engine) HandleMessage(ctx context.Context, message Message) Response {
	if err := ValidateMessage(message); err != nil {
		return failure(err)
	}
	tabId := *message.tabId()

	switch message.(type) {
	case GetTabData:
		snapshot, found, err := engine.Snapshot(ctx, tabId)
		if err != nil {
			return failure(err)
		}
		if !found {
			return Response{Success: true, Message: fmt.Sprintf("no data for tab %d", tabId)}
		}
		return Response{Success: true, Data: TabData{Snapshot: snapshot, Score: score.Calculate(snapshot.Stats)}}
	case ClearTabData:
		cleared, err := engine.Clear(ctx, tabId)
		if err != nil {
			return failure(err)
		}
		if !cleared {
			return Response{Success: true, Message: fmt.Sprintf("no data for tab %d", tabId)}
		}
		return Response{Success: true}
	case GetPrivacyScore:
		snapshot, _, err := engine.Snapshot(ctx, tabId)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Data: score.Calculate(snapshot.Stats)}
	default:
		return failure(webRequestPrivacyErrors.ErrUnknownMessage)
	}
}
