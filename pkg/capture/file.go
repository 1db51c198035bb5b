package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/haivivi/voysis/go/pkg/audio/pcm16"
	"github.com/haivivi/voysis/go/pkg/voysis"
)

// File provides audio from a file instead of a device. WAV files are
// converted to 16 kHz mono; anything else is read as raw 16 kHz PCM.
type File struct {
	Path string
}

type fileStream struct {
	name string
	pcm  []byte
}

func (s *fileStream) Release() {}

// Acquire loads and converts the file.
func (f *File) Acquire(ctx context.Context) (voysis.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %w", voysis.ErrPermissionDenied, err)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %w", voysis.ErrUnsupported, err)
		}
		return nil, fmt.Errorf("capture: read %s: %w", f.Path, err)
	}

	pcm := data
	if bytes.HasPrefix(data, []byte("RIFF")) {
		if pcm, err = DecodeWAV(data); err != nil {
			return nil, fmt.Errorf("capture: %s: %w", f.Path, err)
		}
	}
	return &fileStream{name: f.Path, pcm: pcm}, nil
}

// DecodeWAV converts a PCM WAV file of any rate, depth and channel count
// into 16 kHz mono 16-bit PCM.
func DecodeWAV(data []byte) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	depth := int(dec.BitDepth)
	if depth == 16 && dec.NumChans == 1 && dec.SampleRate == pcm16.Rate {
		pcm := make([]byte, 0, len(buf.Data)*2)
		for _, v := range buf.Data {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(v)))
		}
		return pcm, nil
	}

	scale := float64(int(1) << (depth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if depth == 8 {
			v -= 128
		}
		samples[i] = float64(v) / scale
	}
	mono := pcm16.Downmix(samples, int(dec.NumChans))

	rs, err := pcm16.NewResampler(int(dec.SampleRate), pcm16.Rate)
	if err != nil {
		return nil, err
	}
	return rs.Float64(mono)
}

// FileRecorder replays a File stream. Once the file is exhausted it keeps
// sending silence until stopped, so the server can detect the end of
// speech the way it would from a microphone.
type FileRecorder struct {
	bufferSize int
	realtime   bool
	save       bool
	logger     *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	saved  []byte
}

// FileRecorderOption configures a FileRecorder.
type FileRecorderOption func(*FileRecorder)

// WithRealtime paces file audio at its playback rate instead of sending
// it as fast as possible.
func WithRealtime() FileRecorderOption {
	return func(r *FileRecorder) { r.realtime = true }
}

// WithSave keeps everything sent for SavedStream.
func WithSave() FileRecorderOption {
	return func(r *FileRecorder) { r.save = true }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) FileRecorderOption {
	return func(r *FileRecorder) { r.logger = l }
}

// NewFileRecorder returns a recorder emitting chunks of bufferSize samples.
func NewFileRecorder(bufferSize int, opts ...FileRecorderOption) *FileRecorder {
	if bufferSize <= 0 {
		bufferSize = voysis.DefaultBufferSize
	}
	r := &FileRecorder{bufferSize: bufferSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FileRecorder) MimeType() string { return pcm16.MimeType }

// Start begins feeding the file. onError is never called.
func (r *FileRecorder) Start(stream voysis.CaptureStream, onData func([]byte), _ func(error)) error {
	s, ok := stream.(*fileStream)
	if !ok {
		return fmt.Errorf("capture: file recorder cannot record %T", stream)
	}
	stopCh := make(chan struct{})
	done := make(chan struct{})
	r.mu.Lock()
	r.stopCh, r.done = stopCh, done
	r.mu.Unlock()

	r.logger.Debug("file recorder started", "file", s.name, "bytes", len(s.pcm), "realtime", r.realtime)
	go r.feed(s.pcm, onData, stopCh, done)
	return nil
}

func (r *FileRecorder) feed(pcm []byte, onData func([]byte), stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	chunkBytes := r.bufferSize * 2
	interval := time.Duration(r.bufferSize) * time.Second / pcm16.Rate
	silence := make([]byte, chunkBytes)

	emit := func(chunk []byte) {
		if r.save {
			r.mu.Lock()
			r.saved = append(r.saved, chunk...)
			r.mu.Unlock()
		}
		onData(chunk)
	}

	for pos := 0; ; {
		select {
		case <-stopCh:
			return
		default:
		}

		paced := true
		if pos < len(pcm) {
			end := min(pos+chunkBytes, len(pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, pcm[pos:end])
			pos = end
			emit(chunk)
			paced = r.realtime
		} else {
			emit(silence)
		}

		if !paced {
			continue
		}
		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}
	}
}

// Stop ends the feed and waits for the feeding goroutine to exit.
func (r *FileRecorder) Stop() {
	r.mu.Lock()
	stopCh, done := r.stopCh, r.done
	r.stopCh = nil
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (r *FileRecorder) SavedStream() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.save {
		return nil
	}
	return append([]byte(nil), r.saved...)
}

var _ voysis.MediaProvider = (*File)(nil)
var _ voysis.Recorder = (*FileRecorder)(nil)
