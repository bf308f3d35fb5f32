package pipeline

import (
	"fmt"
	"net/http"
)

// ResultStatus tags boundary results as success or error.
type ResultStatus string

// Result status values.
const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// FetchResult is the typed result returned by every fetch boundary.
// Transport failures are carried in Message; fetch functions never
// return a Go error to their callers.
type FetchResult struct {
	Status     ResultStatus `json:"status"`
	StatusCode int          `json:"status_code,omitempty"`
	Headers    http.Header  `json:"-"`
	Body       []byte       `json:"-"`
	Message    string       `json:"message,omitempty"`
	FromCache  bool         `json:"from_cache,omitempty"`
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool {
	return r.Status == StatusSuccess
}

// FetchOK builds a successful FetchResult.
func FetchOK(statusCode int, headers http.Header, body []byte) FetchResult {
	return FetchResult{
		Status:     StatusSuccess,
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
	}
}

// FetchErrorf builds a failed FetchResult with a formatted message.
func FetchErrorf(format string, args ...any) FetchResult {
	return FetchResult{
		Status:  StatusError,
		Message: fmt.Sprintf(format, args...),
	}
}

// ItemsResult is the typed result of an adapter run: a status plus the
// raw items parsed out of the source.
type ItemsResult struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Items   []RawItem    `json:"items,omitempty"`
}

// OK reports whether the adapter run succeeded.
func (r ItemsResult) OK() bool {
	return r.Status == StatusSuccess
}

// ItemsOK builds a successful ItemsResult.
func ItemsOK(items []RawItem) ItemsResult {
	return ItemsResult{Status: StatusSuccess, Items: items}
}

// ItemsErrorf builds a failed ItemsResult with a formatted message.
func ItemsErrorf(format string, args ...any) ItemsResult {
	return ItemsResult{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}
