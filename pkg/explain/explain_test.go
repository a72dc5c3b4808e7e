package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vphpersson/web_request_privacy/pkg/types"
)

func TestStatus(t *testing.T) {
	testCases := []struct {
		code  int
		title string
		known bool
	}{
		{code: 200, title: "OK", known: true},
		{code: 204, title: "No Content", known: true},
		{code: 0, title: "No Response"},
		{code: 299, title: "Success"},
		{code: 451, title: "Client Error"},
		{code: 599, title: "Server Error"},
		{code: 999, title: "Unknown Status"},
		{code: -1, title: "Unknown Status"},
	}

	for _, testCase := range testCases {
		explanation := Status(testCase.code)
		assert.Equal(t, testCase.title, explanation.Title, "code %d", testCase.code)
		assert.Equal(t, testCase.known, explanation.Known, "code %d", testCase.code)
		assert.NotEmpty(t, explanation.Description)
	}
}

func TestHeader(t *testing.T) {
	known := Header("User-Agent")
	assert.True(t, known.Known)
	assert.Equal(t, "user-agent", known.Key)
	assert.Equal(t, "User-Agent", known.Title)

	assert.Contains(t, Header("X-Custom-Thing").Description, "non-standard")
	assert.Contains(t, Header("Sec-GPC").Description, "browser-controlled")

	unknown := Header("Foo")
	assert.False(t, unknown.Known)
	assert.NotEmpty(t, unknown.Description)
}

func TestResourceType(t *testing.T) {
	assert.True(t, ResourceType(types.ResourceTypePing).Known)

	unknown := ResourceType("csp_report")
	assert.False(t, unknown.Known)
	assert.Equal(t, "csp_report", unknown.Title)
}

func TestRecord(t *testing.T) {
	assert.Nil(t, Record(nil))

	explanations := Record(&types.NetworkRequestRecord{
		Status:          302,
		Type:            types.ResourceTypeImage,
		RequestHeaders:  []*types.Header{{Name: "Cookie", Value: "a=b"}, nil},
		ResponseHeaders: []*types.Header{{Name: "Location", Value: "/"}},
	})
	require.NotNil(t, explanations)
	assert.Equal(t, "Found", explanations.Status.Title)
	assert.Equal(t, "Image", explanations.Type.Title)
	require.Len(t, explanations.RequestHeaders, 1)
	assert.Equal(t, "cookie", explanations.RequestHeaders[0].Key)
	assert.Len(t, explanations.ResponseHeaders, 1)
}
