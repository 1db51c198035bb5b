package pcm16

// Chunker regroups PCM into fixed-size chunks of a number of samples, the
// way a capture buffer of that size would deliver them.
type Chunker struct {
	size int
	buf  []byte
}

// NewChunker returns a Chunker emitting chunks of samples 16-bit samples.
func NewChunker(samples int) *Chunker {
	if samples <= 0 {
		samples = 1
	}
	return &Chunker{size: samples * 2}
}

// Write buffers p and calls emit for every full chunk. The slice passed to
// emit is not reused.
func (c *Chunker) Write(p []byte, emit func([]byte)) {
	c.buf = append(c.buf, p...)
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf)
		c.buf = c.buf[c.size:]
		emit(chunk)
	}
	if len(c.buf) == 0 {
		c.buf = nil
	}
}

// Flush emits any buffered partial chunk.
func (c *Chunker) Flush(emit func([]byte)) {
	if len(c.buf) == 0 {
		return
	}
	chunk := c.buf
	c.buf = nil
	emit(chunk)
}

// Buffered returns the number of bytes waiting for a full chunk.
func (c *Chunker) Buffered() int {
	return len(c.buf)
}
