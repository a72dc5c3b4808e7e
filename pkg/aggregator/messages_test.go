package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	webRequestPrivacyErrors "github.com/vphpersson/web_request_privacy/pkg/errors"
	"github.com/vphpersson/web_request_privacy/pkg/score"
)

func TestDecodeMessage(t *testing.T) {
	tabId := 3

	testCases := []struct {
		name  string
		input string
		want  Message
	}{
		{name: "tab data", input: `{"type":"GET_TAB_DATA","tabId":3}`, want: GetTabData{TabId: &tabId}},
		{name: "clear", input: `{"type":"CLEAR_TAB_DATA","tabId":3}`, want: ClearTabData{TabId: &tabId}},
		{name: "score", input: `{"type":"GET_PRIVACY_SCORE","tabId":3}`, want: GetPrivacyScore{TabId: &tabId}},
		{name: "missing tab id", input: `{"type":"GET_TAB_DATA"}`, want: GetTabData{}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			message, err := DecodeMessage([]byte(testCase.input))
			require.NoError(t, err)
			assert.Equal(t, testCase.want, message)
		})
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"OPEN_PANEL","tabId":1}`))
	assert.ErrorIs(t, err, webRequestPrivacyErrors.ErrUnknownMessage)

	_, err = DecodeMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandleMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine, stop := startEngine(t, nil, zap.NewNop())
	defer stop()
	ctx := context.Background()

	require.NoError(t, engine.TabNavigated(ctx, TabNavigatedEvent{TabId: 1, Url: "https://example.com/"}))
	require.NoError(t, engine.Begin(ctx, BeginEvent{RequestId: "a", TabId: 1, Url: "https://example.com/app.js"}))

	t.Run("missing tab id", func(t *testing.T) {
		response := engine.HandleMessage(ctx, GetTabData{})
		assert.False(t, response.Success)
		assert.Equal(t, webRequestPrivacyErrors.ErrMissingTabId.Error(), response.Message)
	})

	t.Run("nil message", func(t *testing.T) {
		assert.False(t, engine.HandleMessage(ctx, nil).Success)
	})

	t.Run("tab data", func(t *testing.T) {
		tabId := 1
		response := engine.HandleMessage(ctx, GetTabData{TabId: &tabId})
		require.True(t, response.Success)
		data, ok := response.Data.(TabData)
		require.True(t, ok)
		assert.Len(t, data.Snapshot.Records, 1)
		assert.Equal(t, 100, data.Score.Score)
		assert.Equal(t, []string{score.PositiveNote}, data.Score.Issues)
	})

	t.Run("unknown tab", func(t *testing.T) {
		tabId := 99
		response := engine.HandleMessage(ctx, GetTabData{TabId: &tabId})
		assert.True(t, response.Success)
		assert.Nil(t, response.Data)
		assert.NotEmpty(t, response.Message)
	})

	t.Run("privacy score", func(t *testing.T) {
		tabId := 1
		response := engine.HandleMessage(ctx, GetPrivacyScore{TabId: &tabId})
		require.True(t, response.Success)
		result, ok := response.Data.(score.Result)
		require.True(t, ok)
		assert.Equal(t, score.GradeA, result.Grade)
	})

	t.Run("clear", func(t *testing.T) {
		tabId := 1
		require.True(t, engine.HandleMessage(ctx, ClearTabData{TabId: &tabId}).Success)

		snapshot, found, err := engine.Snapshot(ctx, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Empty(t, snapshot.Records)
	})
}

func TestValidateMessage(t *testing.T) {
	tabId := 0
	assert.NoError(t, ValidateMessage(GetTabData{TabId: &tabId}))
	assert.ErrorIs(t, ValidateMessage(ClearTabData{}), webRequestPrivacyErrors.ErrMissingTabId)
	assert.ErrorIs(t, ValidateMessage(nil), webRequestPrivacyErrors.ErrUnknownMessage)
}
