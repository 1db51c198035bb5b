package voysis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Duration phases, measured from the moment capture starts.
const (
	PhaseVAD      = "vad"
	PhaseComplete = "complete"
	PhaseUserStop = "userStop"
)

// Durations maps a phase to the milliseconds elapsed since capture started.
type Durations map[string]int64

// CancelReason is reported to the service when a stream fails.
type CancelReason string

const (
	CancelPermissionDenied CancelReason = "permission-denied"
	CancelCaptureError     CancelReason = "capture-error"
	CancelOther            CancelReason = "other"
)

// cancelReasonFor maps a stream failure to the reported reason.
func cancelReasonFor(err error) CancelReason {
	var ce *CaptureError
	if errors.As(err, &ce) {
		if ce.Reason == ReasonPermissionDenied {
			return CancelPermissionDenied
		}
		return CancelCaptureError
	}
	return CancelOther
}

// Feedback is the body of PATCH {query}/feedback. Zero fields are omitted.
type Feedback struct {
	Rating      int       `json:"rating,omitempty"`
	Description string    `json:"description,omitempty"`
	Durations   Durations `json:"durations,omitempty"`
}

type cancellation struct {
	CancelReason CancelReason `json:"cancelReason"`
	Detail       string       `json:"detail"`
}

// durationTracker collects the phase durations of the current query.
type durationTracker struct {
	now func() time.Time

	mu      sync.Mutex
	started time.Time
	values  Durations
}

func newDurationTracker(now func() time.Time) *durationTracker {
	return &durationTracker{now: now, values: Durations{}}
}

func (d *durationTracker) reset() {
	d.mu.Lock()
	d.started = time.Time{}
	d.values = Durations{}
	d.mu.Unlock()
}

func (d *durationTracker) start() {
	d.mu.Lock()
	d.started = d.now()
	d.mu.Unlock()
}

// record stores the elapsed time for phase. Nothing is recorded before
// capture starts.
func (d *durationTracker) record(phase string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started.IsZero() {
		return
	}
	d.values[phase] = d.now().Sub(d.started).Milliseconds()
}

func (d *durationTracker) snapshot() Durations {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.values)
}

// Durations returns the phase durations collected for the current query.
func (s *Session) Durations() Durations {
	return s.durations.snapshot()
}

// Rate sends a rating and an optional description for q.
func (s *Session) Rate(ctx context.Context, q *Query, rating int, description string) error {
	return s.sendFeedback(ctx, q, &Feedback{Rating: rating, Description: description})
}

// ReportDurations sends phase durations for q.
func (s *Session) ReportDurations(ctx context.Context, q *Query, d Durations) error {
	return s.sendFeedback(ctx, q, &Feedback{Durations: d})
}

func (s *Session) sendFeedback(ctx context.Context, q *Query, fb *Feedback) error {
	if q == nil || q.Links.Self.Href == "" {
		return fmt.Errorf("%w: query has no self link", ErrConfiguration)
	}
	_, err := s.sendAuthorized(ctx, &request{
		method: http.MethodPatch,
		uri:    q.Links.Self.Href + "/feedback",
		headers: map[string]any{
			"Accept":       acceptQuery,
			"Content-Type": "application/json",
		},
		entity: fb,
	})
	return err
}

// ReportCancellation tells the service why a query was abandoned. The
// report is queued and sent in the background; failures are only logged.
func (s *Session) ReportCancellation(queryID string, reason CancelReason, detail string) {
	if queryID == "" {
		return
	}
	s.metrics.observeCancellation(reason)
	s.submitReport("cancellation", func(ctx context.Context) error {
		_, err := s.sendAuthorized(ctx, &request{
			method:  http.MethodPost,
			uri:     "/queries/" + url.PathEscape(queryID) + "/cancellation",
			headers: map[string]any{"Accept": acceptQuery},
			entity:  &cancellation{CancelReason: reason, Detail: detail},
		})
		return err
	})
}

// reportDurationsAsync is the autoSendDurations path.
func (s *Session) reportDurationsAsync(q *Query, d Durations) {
	if len(d) == 0 {
		return
	}
	s.submitReport("durations", func(ctx context.Context) error {
		return s.ReportDurations(ctx, q, d)
	})
}
