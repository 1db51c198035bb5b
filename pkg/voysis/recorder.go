package voysis

import "context"

// MediaProvider acquires an audio capture device. Implementations should
// wrap ErrPermissionDenied or ErrUnsupported where those apply.
type MediaProvider interface {
	Acquire(ctx context.Context) (CaptureStream, error)
}

// CaptureStream is an acquired capture device. Release frees it and is
// called exactly once per acquired stream.
type CaptureStream interface {
	Release()
}

// Recorder turns a capture stream into encoded audio chunks.
type Recorder interface {
	// MimeType is announced in created audio queries.
	MimeType() string

	// Start begins recording from stream. onData receives each encoded
	// chunk; onError receives a failure that ends recording. Both may be
	// called from any goroutine.
	Start(stream CaptureStream, onData func([]byte), onError func(error)) error

	// Stop ends recording. It is called at most once per Start.
	Stop()

	// SavedStream returns everything recorded so far, or nil if the
	// recorder does not keep it.
	SavedStream() []byte
}

// RecorderFactory creates a Recorder for one stream. bufferSize is the
// capture buffer size in samples.
type RecorderFactory func(bufferSize int) Recorder
