package voysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// StreamState is the lifecycle state of an AudioStream.
type StreamState int

const (
	StateIdle StreamState = iota
	StateAcquiringDevice
	StateRecording
	StateStopping
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringDevice:
		return "acquiring_device"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// StreamOptions configures one audio stream.
type StreamOptions struct {
	// Recorder overrides the session's recorder factory for this stream.
	Recorder Recorder

	// OnRecordingStarted is called once, after the first audio chunk has
	// been sent.
	OnRecordingStarted func()

	// OnVADStop is called with the notification type when the service
	// detects the end of speech. It runs on its own goroutine.
	OnVADStop func(notificationType string)
}

// AudioStream is one audio query being streamed. Capture resources are
// released exactly once and the result settles exactly once, whichever
// of Stop, vad_stop, the deadline, a capture or connection failure, or
// context cancellation comes first.
type AudioStream struct {
	session  *Session
	query    *Query
	recorder Recorder
	opts     StreamOptions
	logger   *slog.Logger

	// sendMu orders audio chunks before the end-of-stream byte.
	sendMu sync.Mutex

	mu             sync.Mutex
	state          StreamState
	stopped        bool
	stopErr        error
	starting       bool
	started        bool
	firstChunkSent bool
	capture        CaptureStream
	deadline       *time.Timer
	cancelVAD      func() bool
	stopWatch      func() bool

	cancelResult func() bool
	settleOnce   sync.Once
	done         chan struct{}
	result       *Query
	err          error
}

// StreamAudio starts streaming audio for q, which must have been created
// by CreateAudioQuery. It returns as soon as the stream is set up; use
// Wait for the completed query. Cancelling ctx fails the stream.
//
// Only one stream per session may be active at a time.
func (s *Session) StreamAudio(ctx context.Context, q *Query, opts StreamOptions) (*AudioStream, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query is required", ErrConfiguration)
	}
	rec := opts.Recorder
	if rec == nil {
		if s.config.newRecorder == nil {
			return nil, fmt.Errorf("%w: no recorder configured", ErrConfiguration)
		}
		rec = s.config.newRecorder(s.config.bufferSize)
	}

	s.mu.Lock()
	if s.active != nil {
		s.logger.Warn("starting a stream while another is active", "active_query_id", s.active.query.ID)
	}
	s.mu.Unlock()

	s.durations.reset()
	st := &AudioStream{
		session:  s,
		query:    q,
		recorder: rec,
		opts:     opts,
		logger:   s.logger.With("query_id", q.ID),
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	st.cancelResult = s.correlator.register(KeyAudioStream, st.onResult)
	s.setActive(st)

	stopWatch := context.AfterFunc(ctx, func() {
		st.fail(context.Cause(ctx))
	})
	st.mu.Lock()
	st.stopWatch = stopWatch
	st.mu.Unlock()

	go st.run(ctx)
	return st, nil
}

func (st *AudioStream) run(ctx context.Context) {
	s := st.session

	st.mu.Lock()
	if st.stopped {
		st.mu.Unlock()
		return
	}
	st.state = StateAcquiringDevice
	st.mu.Unlock()

	if s.config.media == nil {
		st.fail(&CaptureError{Reason: ReasonUnsupported, Err: ErrUnsupported})
		return
	}
	capture, err := s.config.media.Acquire(ctx)
	if err != nil {
		st.fail(classifyCaptureError(err))
		return
	}

	st.mu.Lock()
	if st.stopped {
		st.mu.Unlock()
		capture.Release()
		return
	}
	st.capture = capture
	st.state = StateRecording
	st.starting = true
	st.deadline = time.AfterFunc(s.config.streamingDeadline, st.onDeadline)
	st.cancelVAD = s.correlator.register(KeyVADStop, st.onVADStop)
	st.mu.Unlock()

	s.durations.start()
	st.logger.Debug("recording", "mime_type", st.recorder.MimeType(), "deadline", s.config.streamingDeadline)

	err = st.recorder.Start(capture, st.onData, st.onCaptureError)

	st.mu.Lock()
	st.starting = false
	if err == nil {
		st.started = true
	}
	stoppedMeanwhile := st.stopped
	st.mu.Unlock()

	// A stop that landed during Start left the capture to us.
	if stoppedMeanwhile {
		if err == nil {
			st.recorder.Stop()
		}
		capture.Release()
		st.mu.Lock()
		st.state = StateStopped
		st.mu.Unlock()
	}
	if err != nil {
		st.fail(classifyCaptureError(err))
	}
}

// onData sends one chunk. Chunks delivered after the stream stopped are
// dropped.
func (st *AudioStream) onData(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	st.sendMu.Lock()
	st.mu.Lock()
	stopped := st.stopped
	st.mu.Unlock()
	if stopped {
		st.sendMu.Unlock()
		return
	}
	err := st.session.transport.SendBinary(chunk)
	st.sendMu.Unlock()

	st.mu.Lock()
	first := err == nil && !st.firstChunkSent
	if first {
		st.firstChunkSent = true
	}
	st.mu.Unlock()

	if err != nil {
		if errors.Is(err, errNotOpen) {
			err = &TransportError{Op: "stream", Err: errClosedBeforeResult}
		}
		// Stopping the recorder from its own callback could deadlock.
		go st.fail(err)
		return
	}
	st.session.metrics.observeAudio(len(chunk))
	if first && st.opts.OnRecordingStarted != nil {
		st.opts.OnRecordingStarted()
	}
}

func (st *AudioStream) onCaptureError(err error) {
	st.logger.Warn("capture failed", "error", err)
	go st.fail(classifyCaptureError(err))
}

// onDeadline fails a stream that has not settled in time, including one
// already stopped and waiting for query_complete.
func (st *AudioStream) onDeadline() {
	select {
	case <-st.done:
		return
	default:
	}
	st.logger.Warn("streaming deadline elapsed")
	st.fail(ErrTimeout)
}

func (st *AudioStream) onVADStop(o Outcome) {
	if !st.halt(false, nil) {
		return
	}
	st.logger.Debug("stopped on vad")
	if cb := st.opts.OnVADStop; cb != nil {
		var notificationType string
		if err := json.Unmarshal(o.Entity, &notificationType); err != nil {
			notificationType = NotificationVADStop
		}
		go cb(notificationType)
	}
}

// onResult receives query_complete, internal_server_error and unknown
// notifications.
func (st *AudioStream) onResult(o Outcome) {
	s := st.session
	st.halt(false, o.Err)
	if o.Err != nil {
		st.settle(nil, o.Err)
		return
	}

	q := st.query
	if len(o.Entity) > 0 && string(o.Entity) != "null" {
		decoded, err := decodeQuery(o.Entity)
		if err != nil {
			st.settle(nil, err)
			return
		}
		q = decoded
	}
	if st.settle(q, nil) && s.config.autoSendDurations {
		s.reportDurationsAsync(q, s.durations.snapshot())
	}
}

// Stop ends the stream as requested by the user: the end-of-stream byte is
// sent and capture is released. The result still arrives through Wait.
// Stop is safe to call any number of times from any goroutine.
func (st *AudioStream) Stop() {
	if st.halt(true, nil) {
		st.session.durations.record(PhaseUserStop)
	}
}

// halt stops capture once. It reports whether this call did the stopping.
// The deadline keeps running until the result settles.
func (st *AudioStream) halt(sendEndOfStream bool, cause error) bool {
	st.mu.Lock()
	if st.stopped {
		st.mu.Unlock()
		return false
	}
	recording := st.state == StateRecording
	st.stopped = true
	st.stopErr = cause
	st.state = StateStopping
	// While the recorder is starting, run owns the capture.
	starting := st.starting
	var rec Recorder
	if st.started {
		rec = st.recorder
	}
	var capture CaptureStream
	if !starting {
		capture = st.capture
	}
	cancelVAD := st.cancelVAD
	st.mu.Unlock()

	if sendEndOfStream && recording {
		st.sendMu.Lock()
		err := st.session.transport.SendBinary([]byte{endOfStream})
		st.sendMu.Unlock()
		if err != nil {
			st.logger.Debug("end of stream not sent", "error", err)
		}
	}
	if cancelVAD != nil {
		cancelVAD()
	}
	if rec != nil {
		rec.Stop()
	}
	if capture != nil {
		capture.Release()
	}

	if !starting {
		st.mu.Lock()
		st.state = StateStopped
		st.mu.Unlock()
	}

	if cause != nil {
		st.logger.Debug("stream stopped", "error", cause)
	} else {
		st.logger.Debug("stream stopped")
	}
	return true
}

// fail stops the stream with err and, if the result was still pending,
// rejects it and reports the cancellation.
func (st *AudioStream) fail(err error) {
	st.halt(false, err)
	if st.settle(nil, err) {
		st.session.ReportCancellation(st.query.ID, cancelReasonFor(err), err.Error())
	}
}

func (st *AudioStream) settle(q *Query, err error) bool {
	settled := false
	st.settleOnce.Do(func() {
		settled = true
		st.result, st.err = q, err
		st.cancelResult()

		st.mu.Lock()
		stopWatch := st.stopWatch
		deadline := st.deadline
		st.mu.Unlock()
		if stopWatch != nil {
			stopWatch()
		}
		if deadline != nil {
			deadline.Stop()
		}

		st.session.metrics.observeStream(err)
		st.session.clearActive(st)
		close(st.done)
	})
	return settled
}

// abort settles the stream with err without reporting a cancellation.
func (st *AudioStream) abort(err error) {
	st.halt(false, err)
	st.settle(nil, err)
}

// Wait blocks until the query completes or fails, or ctx is done.
func (st *AudioStream) Wait(ctx context.Context) (*Query, error) {
	select {
	case <-st.done:
		return st.result, st.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the result has settled.
func (st *AudioStream) Done() <-chan struct{} {
	return st.done
}

// State returns the current lifecycle state.
func (st *AudioStream) State() StreamState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// StopCause returns the error that stopped capture, or nil if the stream
// is still running or stopped cleanly.
func (st *AudioStream) StopCause() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stopErr
}

// Query returns the query being streamed.
func (st *AudioStream) Query() *Query {
	return st.query
}

// SavedStream returns the audio recorded so far, if the recorder keeps it.
func (st *AudioStream) SavedStream() []byte {
	return st.recorder.SavedStream()
}
