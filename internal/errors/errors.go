package errors

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Code identifies why a GPU query failed.
type Code string

// Query failure codes. Malformed rows and unparseable power values are not
// errors and have no code.
const (
	CodeToolMissing Code = "QUERY_TOOL_MISSING"
	CodeTimeout     Code = "QUERY_TIMEOUT"
	CodeFailed      Code = "QUERY_FAILED"
)

// QueryError is a failed GPU query. Message is the text rendered into the
// "# Error:" comment line.
type QueryError struct {
	Code    Code
	Message string
	Err     error
}

func (e *QueryError) Error() string { return e.Message }

// Unwrap exposes the underlying exec error to errors.Is and errors.As.
func (e *QueryError) Unwrap() error { return e.Err }

// failureWindow is how long a code stays listed after its last occurrence.
const failureWindow = 5 * time.Minute

// Failure summarizes the recent occurrences of one failure code.
type Failure struct {
	Code        Code      `json:"code"`
	Count       int       `json:"count"`
	LastMessage string    `json:"last_message"`
	LastSeen    time.Time `json:"last_seen"`
}

// RecentFailures keeps one running Failure per code for /debug/errors.
// A code that has not recurred within five minutes is dropped and its
// count starts over.
type RecentFailures struct {
	mu    sync.Mutex
	now   func() time.Time
	codes map[Code]*Failure
}

func NewRecentFailures() *RecentFailures {
	return &RecentFailures{
		now:   time.Now,
		codes: make(map[Code]*Failure),
	}
}

// Record counts one occurrence of qe.
func (r *RecentFailures) Record(qe *QueryError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	f, ok := r.codes[qe.Code]
	if !ok || now.Sub(f.LastSeen) > failureWindow {
		f = &Failure{Code: qe.Code}
		r.codes[qe.Code] = f
	}
	f.Count++
	f.LastMessage = qe.Message
	f.LastSeen = now
}

// Active returns the codes seen within the window, ordered by code.
func (r *RecentFailures) Active() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Failure, 0, len(r.codes))
	for code, f := range r.codes {
		if now.Sub(f.LastSeen) > failureWindow {
			delete(r.codes, code)
			continue
		}
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b Failure) int {
		return strings.Compare(string(a.Code), string(b.Code))
	})
	return out
}
