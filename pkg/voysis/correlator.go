package voysis

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

// Key identifies a pending continuation: either a request id or one of the
// notification keys below. Request ids are decimal numbers, so they never
// collide with the notification keys.
type Key string

const (
	// KeyAudioStream receives query_complete, internal_server_error and any
	// unknown notification.
	KeyAudioStream Key = "AudioStreamCallback"

	// KeyVADStop receives vad_stop.
	KeyVADStop Key = "VadStopCallback"
)

// Outcome is the tagged result delivered to a continuation. Err is nil on
// success.
type Outcome struct {
	Entity json.RawMessage
	Err    error
}

// Continuation receives the outcome for a key. It runs on the connection's
// read goroutine and must not block.
type Continuation func(Outcome)

type pendingEntry struct {
	seq uint64
	fn  Continuation
}

// correlator matches inbound frames to pending continuations.
type correlator struct {
	logger  *slog.Logger
	metrics *metrics

	// onNotification, if set, observes every notification type before the
	// matching continuation fires.
	onNotification func(notificationType string)

	mu      sync.Mutex
	counter uint64
	seq     uint64
	pending map[Key]pendingEntry
}

func newCorrelator(logger *slog.Logger, m *metrics) *correlator {
	return &correlator{
		logger:  logger,
		metrics: m,
		pending: make(map[Key]pendingEntry),
	}
}

// nextID returns the next request id: "1", "2", ...
func (c *correlator) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return strconv.FormatUint(c.counter, 10)
}

// Register stores a success and an error continuation under key. Either
// may be nil. When both are nil nothing is stored. The entry is consumed by
// the first outcome for the key, whichever arm it takes.
func (c *correlator) Register(key Key, onSuccess func(json.RawMessage), onError func(error)) {
	if onSuccess == nil && onError == nil {
		return
	}
	c.register(key, func(o Outcome) {
		if o.Err != nil {
			if onError != nil {
				onError(o.Err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(o.Entity)
		}
	})
}

// register stores fn under key, replacing any previous entry. The returned
// function evicts this registration (and only this one) without firing it.
func (c *correlator) register(key Key, fn Continuation) (cancel func() bool) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.pending[key] = pendingEntry{seq: seq, fn: fn}
	c.mu.Unlock()

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.pending[key]
		if !ok || e.seq != seq {
			return false
		}
		delete(c.pending, key)
		return true
	}
}

// resolve removes the entry for key and fires it with o.
func (c *correlator) resolve(key Key, o Outcome) bool {
	c.mu.Lock()
	e, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("no pending continuation", "key", string(key))
		return false
	}
	e.fn(o)
	return true
}

func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispatch routes one inbound text frame.
func (c *correlator) Dispatch(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.logger.Warn("dropping unparseable frame", "error", err, "frame", truncate(data, 200))
		return
	}

	switch f.Type {
	case frameResponse:
		c.metrics.observeResponse(f.ResponseCode)
		if f.ok() {
			c.resolve(Key(f.RequestID), Outcome{Entity: f.Entity})
			return
		}
		c.resolve(Key(f.RequestID), Outcome{Err: &Error{
			ResponseCode:    f.ResponseCode,
			ResponseMessage: f.ResponseMessage,
			RequestID:       f.RequestID,
		}})

	case frameNotification:
		c.metrics.observeNotification(f.NotificationType)
		if c.onNotification != nil {
			c.onNotification(f.NotificationType)
		}
		switch f.NotificationType {
		case NotificationVADStop:
			entity, _ := json.Marshal(f.NotificationType)
			c.resolve(KeyVADStop, Outcome{Entity: entity})
		case NotificationQueryComplete:
			c.resolve(KeyAudioStream, Outcome{Entity: f.Entity})
		case NotificationInternalServerError:
			c.resolve(KeyAudioStream, Outcome{Err: ErrServer})
		default:
			c.resolve(KeyAudioStream, Outcome{Err: &UnknownNotificationError{Type: f.NotificationType}})
		}

	default:
		c.logger.Warn("dropping frame of unknown type", "type", f.Type)
	}
}
