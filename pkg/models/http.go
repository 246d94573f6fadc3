package models

import (
	"net/http"
	"time"
)

type HTTPResponse struct {
	URL           string        `json:"url"`
	StatusCode    int           `json:"status_code"`
	Status        string        `json:"status"`
	Headers       http.Header   `json:"headers"`
	Body          string        `json:"body,omitempty"`
	ResponseTime  time.Duration `json:"response_time"`
	Protocol      string        `json:"protocol"`
	ContentType   string        `json:"content_type"`
	ContentLength int64         `json:"content_length"`
	Truncated     bool          `json:"truncated,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (r *HTTPResponse) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

func (r *HTTPResponse) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Success reports any 2xx status.
func (r *HTTPResponse) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *HTTPResponse) IsRedirect() bool {
	return r != nil && r.StatusCode >= 300 && r.StatusCode < 400
}
