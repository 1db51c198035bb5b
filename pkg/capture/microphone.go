package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/haivivi/voysis/go/pkg/audio/pcm16"
	"github.com/haivivi/voysis/go/pkg/voysis"
)

// DefaultCaptureRate is the rate the microphone is opened at before
// resampling to 16 kHz.
const DefaultCaptureRate = 48000

// Microphone acquires a capture device through miniaudio.
type Microphone struct {
	// SampleRate is the capture rate. Zero means DefaultCaptureRate.
	SampleRate uint32

	// Device selects the first capture device whose name contains this
	// string (case-insensitive). Empty selects the system default.
	Device string
}

type micStream struct {
	ctx      *malgo.AllocatedContext
	rate     uint32
	deviceID *malgo.DeviceID
	name     string

	once sync.Once
}

func (s *micStream) Release() {
	s.once.Do(func() {
		s.ctx.Uninit()
		s.ctx.Free()
	})
}

// Acquire opens the audio backend and picks a capture device.
func (m *Microphone) Acquire(ctx context.Context) (voysis.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("capture: init audio context: %w", err))
	}
	stream := &micStream{ctx: mctx, rate: m.SampleRate}
	if stream.rate == 0 {
		stream.rate = DefaultCaptureRate
	}

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		stream.Release()
		return nil, classify(fmt.Errorf("capture: list devices: %w", err))
	}
	if len(devices) == 0 {
		stream.Release()
		return nil, fmt.Errorf("capture: no capture devices: %w", voysis.ErrUnsupported)
	}

	if m.Device != "" {
		want := strings.ToLower(m.Device)
		for i := range devices {
			if strings.Contains(strings.ToLower(devices[i].Name()), want) {
				id := devices[i].ID
				stream.deviceID = &id
				stream.name = devices[i].Name()
				break
			}
		}
		if stream.deviceID == nil {
			stream.Release()
			return nil, fmt.Errorf("capture: no capture device matching %q", m.Device)
		}
	}
	return stream, nil
}

// Devices lists the names of the available capture devices.
func Devices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init audio context: %w", err)
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name()
	}
	return names, nil
}

// classify maps miniaudio results onto the voysis capture sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, malgo.ErrAccessDenied):
		return fmt.Errorf("%w: %w", voysis.ErrPermissionDenied, err)
	case errors.Is(err, malgo.ErrNoBackend),
		errors.Is(err, malgo.ErrNoDevice),
		errors.Is(err, malgo.ErrDeviceTypeNotSupported):
		return fmt.Errorf("%w: %w", voysis.ErrUnsupported, err)
	}
	return err
}

// MicRecorder records a Microphone stream as 16 kHz mono PCM.
type MicRecorder struct {
	bufferSize int
	save       bool
	logger     *slog.Logger

	mu      sync.Mutex
	device  *malgo.Device
	frames  chan []byte
	done    chan struct{}
	saved   []byte
	dropped int
}

// NewMicRecorder returns a recorder emitting chunks of bufferSize samples.
// With save set, everything recorded is kept for SavedStream.
func NewMicRecorder(bufferSize int, save bool, logger *slog.Logger) *MicRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MicRecorder{bufferSize: bufferSize, save: save, logger: logger}
}

func (r *MicRecorder) MimeType() string { return pcm16.MimeType }

// Start opens the capture device. Audio callbacks only copy the captured
// frames; conversion and delivery happen on a separate goroutine.
func (r *MicRecorder) Start(stream voysis.CaptureStream, onData func([]byte), onError func(error)) error {
	ms, ok := stream.(*micStream)
	if !ok {
		return fmt.Errorf("capture: microphone recorder cannot record %T", stream)
	}
	rs, err := pcm16.NewResampler(int(ms.rate), pcm16.Rate)
	if err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = ms.rate
	if ms.deviceID != nil {
		cfg.Capture.DeviceID = ms.deviceID.Pointer()
	}

	frames := make(chan []byte, 64)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			buf := make([]byte, len(in))
			copy(buf, in)
			select {
			case frames <- buf:
			default:
				r.mu.Lock()
				r.dropped++
				r.mu.Unlock()
			}
		},
	}

	dev, err := malgo.InitDevice(ms.ctx.Context, cfg, callbacks)
	if err != nil {
		return classify(fmt.Errorf("capture: init device: %w", err))
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return classify(fmt.Errorf("capture: start device: %w", err))
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.device, r.frames, r.done = dev, frames, done
	r.mu.Unlock()

	r.logger.Debug("microphone started", "device", ms.name, "rate", ms.rate, "buffer_size", r.bufferSize)
	go r.pump(frames, done, rs, onData, onError)
	return nil
}

func (r *MicRecorder) pump(frames <-chan []byte, done chan<- struct{}, rs *pcm16.Resampler, onData func([]byte), onError func(error)) {
	defer close(done)

	chunker := pcm16.NewChunker(r.bufferSize)
	failed := false
	for buf := range frames {
		if failed {
			continue
		}
		samples := make([]float32, len(buf)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		pcm, err := rs.Float32(samples)
		if err != nil {
			failed = true
			onError(err)
			continue
		}
		if r.save {
			r.mu.Lock()
			r.saved = append(r.saved, pcm...)
			r.mu.Unlock()
		}
		chunker.Write(pcm, onData)
	}
}

// Stop closes the device and waits for pending audio to be delivered.
func (r *MicRecorder) Stop() {
	r.mu.Lock()
	dev, frames, done := r.device, r.frames, r.done
	r.device = nil
	dropped := r.dropped
	r.mu.Unlock()
	if dev == nil {
		return
	}

	dev.Stop()
	dev.Uninit()
	close(frames)
	<-done

	if dropped > 0 {
		r.logger.Warn("microphone frames dropped", "count", dropped)
	}
}

func (r *MicRecorder) SavedStream() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.save {
		return nil
	}
	return append([]byte(nil), r.saved...)
}

var _ voysis.MediaProvider = (*Microphone)(nil)
var _ voysis.Recorder = (*MicRecorder)(nil)
