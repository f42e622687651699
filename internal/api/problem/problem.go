// Package problem writes RFC 7807 problem+json responses.
package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.ledger-core.dev/"
	traceHeader = "X-Trace-ID"
)

type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code is the stable ledger error code when the problem comes from a
	// domain error, e.g. insufficient_funds.
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Type expands a slug such as "ledger/account_not_found" into a type URI.
// Absolute URIs and about:blank pass through.
func Type(slug string) string {
	if slug == "" || slug == "about:blank" || strings.Contains(slug, "://") {
		return slug
	}
	return baseTypeURL + strings.TrimPrefix(slug, "/")
}

func New(status int, slug, detail string) Details {
	return Details{Type: Type(slug), Status: status, Detail: detail}
}

func (d Details) WithCode(code string) Details {
	d.Code = code
	return d
}

// Send fills the title, instance and trace id when missing and writes d.
func Send(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if r != nil {
		if d.Instance == "" {
			d.Instance = r.URL.Path
		}
		if d.TraceID == "" {
			d.TraceID = r.Header.Get(traceHeader)
		}
	}
	if d.TraceID == "" {
		d.TraceID = w.Header().Get(traceHeader)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	Send(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}
