package types

import (
	"github.com/Motmedel/ecs_go/ecs"
)

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type NetworkBase struct {
	RequestId         string             `json:"requestId"`
	Url               string             `json:"url"`
	OriginUrl         string             `json:"originUrl"`
	DocumentUrl       string             `json:"documentUrl"`
	Method            string             `json:"method"`
	Type              string             `json:"type"`
	TimeStamp         float64            `json:"timeStamp"`
	TabId             int                `json:"tabId"`
	FrameId           int                `json:"frameId"`
	ParentFrameId     int                `json:"parentFrameId"`
	Incognito         bool               `json:"incognito"`
	ThirdParty        bool               `json:"thirdParty"`
	UrlClassification *UrlClassification `json:"urlClassification"`
	RequestSize       int                `json:"requestSize"`
	ResponseSize      int                `json:"responseSize"`
}

type UploadData struct {
	Bytes string `json:"bytes,omitempty"`
	File  string `json:"file,omitempty"`
}

type RequestBody struct {
	Error    string              `json:"error,omitempty"`
	FormData map[string][]string `json:"formData,omitempty"`
	Raw      []*UploadData       `json:"raw,omitempty"`
}

type NetworkRequest struct {
	NetworkBase
	RequestHeaders []*Header    `json:"requestHeaders,omitempty"`
	RequestBody    *RequestBody `json:"requestBody,omitempty"`
}

type NetworkResponse struct {
	NetworkBase
	IP              string    `json:"ip"`
	StatusCode      int       `json:"statusCode,omitempty"`
	StatusLine      string    `json:"statusLine,omitempty"`
	FromCache       bool      `json:"fromCache,omitempty"`
	Error           string    `json:"error,omitempty"`
	ResponseHeaders []*Header `json:"responseHeaders,omitempty"`
}

type UrlClassification struct {
	FirstParty []string `json:"firstParty"`
	ThirdParty []string `json:"thirdParty"`
}

type EcsWebRequestLogging struct {
	TabId             int    `json:"tab_id"`
	Type              string `json:"type,omitempty"`
	FromCache         *bool  `json:"from_cache,omitempty"`
	Source            string `json:"source,omitempty"`
	RegistrableDomain string `json:"registrable_domain,omitempty"`
	ThirdParty        bool   `json:"third_party"`
	Tracker           bool   `json:"tracker"`
	PageUrl           string `json:"page_url,omitempty"`
}

type EcsWebRequestLoggingBase struct {
	ecs.Base
	WebRequestLogging *EcsWebRequestLogging `json:"web_request_logging,omitempty"`
}
