package pcm16

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func samplesOf(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestFromFloat32(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{2, 32767},
		{-3, -32768},
	}
	for _, tt := range tests {
		got := samplesOf(FromFloat32(nil, []float32{tt.in}))
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("FromFloat32(%v) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromFloat32Appends(t *testing.T) {
	dst := []byte{0xAA}
	got := FromFloat32(dst, []float32{0, 1})
	want := []byte{0xAA, 0x00, 0x00, 0xFF, 0x7F}
	if !bytes.Equal(got, want) {
		t.Errorf("FromFloat32 = %x, want %x", got, want)
	}
}

func TestToFloat64(t *testing.T) {
	got := ToFloat64([]byte{0x00, 0x80, 0x00, 0x00, 0x00, 0x40, 0x01})
	want := []float64{-1, 0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	got := Downmix([]float64{1, 0, -0.5, -0.5}, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("Downmix = %v", got)
	}
	mono := []float64{0.1, 0.2}
	if got := Downmix(mono, 1); &got[0] != &mono[0] {
		t.Error("Downmix copied mono input")
	}
}

func TestResamplerPassthrough(t *testing.T) {
	r, err := NewResampler(Rate, Rate)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	pcm := FromFloat32(nil, []float32{0.25, -0.25})
	got, err := r.PCM(pcm)
	if err != nil {
		t.Fatalf("PCM: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM = %x, want %x", got, pcm)
	}
	out, err := r.Float32([]float32{1, -1})
	if err != nil {
		t.Fatalf("Float32: %v", err)
	}
	if s := samplesOf(out); s[0] != 32767 || s[1] != -32768 {
		t.Errorf("Float32 = %v", s)
	}
}

func TestResamplerDownsamples(t *testing.T) {
	r, err := NewResampler(48000, Rate)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	var total int
	in := make([]float32, 4800)
	for i := 0; i < 10; i++ {
		out, err := r.Float32(in)
		if err != nil {
			t.Fatalf("Float32: %v", err)
		}
		if len(out)%2 != 0 {
			t.Fatalf("odd output length %d", len(out))
		}
		total += len(out) / 2
	}
	// 48000 input samples should give at most 16000 output samples.
	if total == 0 || total > 16000 {
		t.Errorf("output samples = %d, want (0, 16000]", total)
	}
}

func TestNewResamplerInvalid(t *testing.T) {
	if _, err := NewResampler(0, Rate); err == nil {
		t.Error("NewResampler(0, 16000) succeeded")
	}
}

func TestChunker(t *testing.T) {
	c := NewChunker(2) // 4 bytes
	var chunks [][]byte
	emit := func(b []byte) { chunks = append(chunks, b) }

	c.Write([]byte{1, 2, 3}, emit)
	if len(chunks) != 0 || c.Buffered() != 3 {
		t.Fatalf("chunks = %v, buffered = %d", chunks, c.Buffered())
	}
	c.Write([]byte{4, 5, 6, 7, 8, 9}, emit)
	if len(chunks) != 2 || !bytes.Equal(chunks[0], []byte{1, 2, 3, 4}) || !bytes.Equal(chunks[1], []byte{5, 6, 7, 8}) {
		t.Fatalf("chunks = %v", chunks)
	}
	c.Flush(emit)
	if len(chunks) != 3 || !bytes.Equal(chunks[2], []byte{9}) || c.Buffered() != 0 {
		t.Fatalf("chunks = %v", chunks)
	}
	c.Flush(emit)
	if len(chunks) != 3 {
		t.Error("Flush of an empty chunker emitted")
	}
}
