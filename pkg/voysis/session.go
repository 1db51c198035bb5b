package voysis

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the client library version.
const Version = "1.2.0"

const (
	// DefaultStreamingDeadline bounds how long a stream may record.
	DefaultStreamingDeadline = 20 * time.Second

	// DefaultTokenExpiryMargin is how close to expiry a session token may
	// get before it is reissued.
	DefaultTokenExpiryMargin = 30 * time.Second

	// DefaultBufferSize is the capture buffer size in samples.
	DefaultBufferSize = 4096

	// DefaultReportTimeout bounds each best-effort telemetry request.
	DefaultReportTimeout = 10 * time.Second
)

// config holds the session configuration. It is built once by NewSession.
type config struct {
	host              string
	audioProfileID    string
	refreshToken      string
	userID            string
	clientInfo        string
	wsURL             string
	mimeType          string
	streamingDeadline time.Duration
	tokenExpiryMargin time.Duration
	reportTimeout     time.Duration
	bufferSize        int
	ignoreVAD         bool
	autoSendDurations bool
	dialer            *websocket.Dialer
	logger            *slog.Logger
	registerer        prometheus.Registerer
	now               func() time.Time
	media             MediaProvider
	newRecorder       RecorderFactory
}

// Option configures the Session.
type Option func(*config)

// WithRefreshToken sets the refresh token used to issue session tokens.
// Without one, requests are sent unauthenticated.
func WithRefreshToken(token string) Option {
	return func(c *config) {
		c.refreshToken = token
	}
}

// WithUserID sets the user id attached to created queries.
func WithUserID(userID string) Option {
	return func(c *config) {
		c.userID = userID
	}
}

// WithStreamingDeadline sets how long a stream may record before it is
// stopped with ErrTimeout.
func WithStreamingDeadline(d time.Duration) Option {
	return func(c *config) {
		c.streamingDeadline = d
	}
}

// WithTokenExpiryMargin sets how close to expiry a session token may get
// before it is reissued.
func WithTokenExpiryMargin(d time.Duration) Option {
	return func(c *config) {
		c.tokenExpiryMargin = d
	}
}

// WithReportTimeout bounds each best-effort telemetry request.
func WithReportTimeout(d time.Duration) Option {
	return func(c *config) {
		c.reportTimeout = d
	}
}

// WithBufferSize sets the capture buffer size in samples.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithIgnoreVAD asks the service not to stop audio queries on detected
// end of speech. Text queries always ignore VAD.
func WithIgnoreVAD(ignore bool) Option {
	return func(c *config) {
		c.ignoreVAD = ignore
	}
}

// WithAutoSendDurations reports the collected phase durations after every
// successful audio query.
func WithAutoSendDurations(enabled bool) Option {
	return func(c *config) {
		c.autoSendDurations = enabled
	}
}

// WithClientInfo sets the X-Voysis-Client-Info header of query requests.
func WithClientInfo(info string) Option {
	return func(c *config) {
		c.clientInfo = info
	}
}

// WithWebSocketURL overrides the wss://{host}/websocketapi endpoint.
func WithWebSocketURL(url string) Option {
	return func(c *config) {
		c.wsURL = url
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithMetrics registers the session's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithMediaProvider sets the provider used to acquire capture devices.
func WithMediaProvider(p MediaProvider) Option {
	return func(c *config) {
		c.media = p
	}
}

// WithRecorder sets the factory that creates one Recorder per stream.
func WithRecorder(f RecorderFactory) Option {
	return func(c *config) {
		c.newRecorder = f
	}
}

// WithMimeType overrides the audio mime type announced in created queries.
// By default it is taken from the configured recorder.
func WithMimeType(mimeType string) Option {
	return func(c *config) {
		c.mimeType = mimeType
	}
}

// Session is a query session with the Voysis service over one WebSocket
// connection.
type Session struct {
	config     *config
	logger     *slog.Logger
	metrics    *metrics
	transport  *transport
	correlator *correlator
	tokens     *tokenManager
	durations  *durationTracker

	reportsMu sync.RWMutex
	reports   *workerpool.WorkerPool
	closed    bool

	mu     sync.Mutex
	active *AudioStream
}

// NewSession creates a session for the service at host. The connection is
// opened lazily by the first request.
func NewSession(host, audioProfileID string, opts ...Option) (*Session, error) {
	cfg := &config{
		host:              host,
		audioProfileID:    audioProfileID,
		streamingDeadline: DefaultStreamingDeadline,
		tokenExpiryMargin: DefaultTokenExpiryMargin,
		reportTimeout:     DefaultReportTimeout,
		bufferSize:        DefaultBufferSize,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.host == "" && cfg.wsURL == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConfiguration)
	}
	if cfg.audioProfileID == "" {
		return nil, fmt.Errorf("%w: audio profile id is required", ErrConfiguration)
	}
	if cfg.wsURL == "" {
		cfg.wsURL = "wss://" + cfg.host + "/websocketapi"
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.dialer == nil {
		cfg.dialer = &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	}
	if cfg.mimeType == "" {
		cfg.mimeType = DefaultMimeType
		if cfg.newRecorder != nil {
			if mt := cfg.newRecorder(cfg.bufferSize).MimeType(); mt != "" {
				cfg.mimeType = mt
			}
		}
	}

	logger := cfg.logger.With("component", "voysis")
	m := newMetrics(cfg.registerer)

	s := &Session{
		config:    cfg,
		logger:    logger,
		metrics:   m,
		durations: newDurationTracker(cfg.now),
		reports:   workerpool.New(1),
	}
	s.correlator = newCorrelator(logger.With("sub", "correlator"), m)
	s.correlator.onNotification = s.recordNotification
	s.transport = newTransport(cfg.wsURL, cfg.dialer, s.correlator.Dispatch, logger.With("sub", "transport"))
	s.tokens = &tokenManager{
		refreshToken: cfg.refreshToken,
		margin:       cfg.tokenExpiryMargin,
		now:          cfg.now,
		send:         s.send,
		logger:       logger.With("sub", "token"),
		metrics:      m,
	}
	return s, nil
}

// Close stops the active stream, waits for queued reports and closes the
// connection. A stream still waiting for its result fails with a
// TransportError.
func (s *Session) Close() error {
	s.FinishStreaming()

	s.reportsMu.Lock()
	if s.closed {
		s.reportsMu.Unlock()
		return nil
	}
	s.closed = true
	s.reportsMu.Unlock()

	s.reports.StopWait()
	err := s.transport.Close()

	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st != nil {
		st.abort(&TransportError{Op: "close", Err: errClosedBeforeResult})
	}
	return err
}

// Connected reports whether the connection is currently open.
func (s *Session) Connected() bool {
	return s.transport.IsOpen()
}

// Token returns the current session token.
func (s *Session) Token() SessionToken {
	return s.tokens.Current()
}

// IssueAppToken issues a new session token from the refresh token.
func (s *Session) IssueAppToken(ctx context.Context) (SessionToken, error) {
	return s.tokens.Issue(ctx)
}

// request is one outbound request before it is framed.
type request struct {
	method  string
	uri     string
	token   string
	headers map[string]any
	entity  any
}

// send opens the connection if needed, sends req and waits for its
// response. ctx cancellation evicts the pending continuation.
func (s *Session) send(ctx context.Context, req *request) (json.RawMessage, error) {
	if err := s.transport.Open(ctx); err != nil {
		return nil, err
	}

	id := s.correlator.nextID()
	headers := make(map[string]any, len(req.headers)+1)
	if req.token != "" {
		headers["Authorization"] = "Bearer " + req.token
	}
	maps.Copy(headers, req.headers)

	data, err := encodeRequest(&requestFrame{
		Type:      frameRequest,
		RequestID: id,
		Method:    req.method,
		RestURI:   req.uri,
		Headers:   headers,
		Entity:    req.entity,
	})
	if err != nil {
		return nil, err
	}

	result := make(chan Outcome, 1)
	cancel := s.correlator.register(Key(id), func(o Outcome) { result <- o })

	s.logger.Debug("sending request", "request_id", id, "method", req.method, "uri", req.uri)
	if err := s.transport.SendText(data); err != nil {
		cancel()
		return nil, err
	}
	s.metrics.observeRequest(req.method)

	select {
	case o := <-result:
		return o.Entity, o.Err
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// sendAuthorized refreshes the session token if needed and sends req with
// it.
func (s *Session) sendAuthorized(ctx context.Context, req *request) (json.RawMessage, error) {
	tok, err := s.tokens.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}
	req.token = tok.Token
	return s.send(ctx, req)
}

// submitReport queues fn on the report worker. Reports queued after Close
// are dropped.
func (s *Session) submitReport(name string, fn func(ctx context.Context) error) {
	s.reportsMu.RLock()
	defer s.reportsMu.RUnlock()
	if s.closed {
		s.logger.Debug("session closed, dropping report", "report", name)
		return
	}
	timeout := s.config.reportTimeout
	s.reports.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("report failed", "report", name, "error", err)
		}
	})
}

func (s *Session) recordNotification(notificationType string) {
	switch notificationType {
	case NotificationVADStop:
		s.durations.record(PhaseVAD)
	case NotificationQueryComplete:
		s.durations.record(PhaseComplete)
	}
}

func (s *Session) setActive(st *AudioStream) {
	s.mu.Lock()
	s.active = st
	s.mu.Unlock()
}

func (s *Session) clearActive(st *AudioStream) {
	s.mu.Lock()
	if s.active == st {
		s.active = nil
	}
	s.mu.Unlock()
}

// FinishStreaming stops the active stream as if the user stopped it.
func (s *Session) FinishStreaming() {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st != nil {
		st.Stop()
	}
}
