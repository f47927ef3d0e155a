package pipeline

import (
	"encoding/binary"
	"io"
	"math"
)

// EncodeFrames writes each packet as a little-endian int16 length followed by
// its payload.
func EncodeFrames(packets [][]byte) ([]byte, error) {
	size := 0
	for _, p := range packets {
		if len(p) > math.MaxInt16 {
			return nil, ErrFrameTooLarge
		}
		size += 2 + len(p)
	}

	out := make([]byte, 0, size)
	for _, p := range packets {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out, nil
}

// FrameReader walks a length-prefixed frame buffer.
type FrameReader struct {
	data []byte
	off  int
	n    int
}

func NewFrameReader(data []byte) *FrameReader {
	return &FrameReader{data: data}
}

// Next returns the next frame, io.EOF at a clean end and
// io.ErrUnexpectedEOF when the buffer is cut inside a frame.
func (r *FrameReader) Next() ([]byte, error) {
	if r.off >= len(r.data) {
		return nil, io.EOF
	}
	if len(r.data)-r.off < 2 {
		return nil, io.ErrUnexpectedEOF
	}
	l := int(int16(binary.LittleEndian.Uint16(r.data[r.off:])))
	if l < 0 || len(r.data)-r.off-2 < l {
		return nil, io.ErrUnexpectedEOF
	}
	start := r.off + 2
	r.off = start + l
	r.n++
	return r.data[start:r.off], nil
}

// Served is the number of frames returned so far.
func (r *FrameReader) Served() int { return r.n }

// CountFrames returns the number of complete frames in data.
func CountFrames(data []byte) int {
	r := NewFrameReader(data)
	for {
		if _, err := r.Next(); err != nil {
			return r.Served()
		}
	}
}
