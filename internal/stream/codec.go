package stream

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

const (
	OpCodeFrame byte = 0x01

	headerSize = 1 + 8 + 8 + 4
)

var ErrShortFrame = errors.New("stream: short frame")

// EncodeFrame lays a frame out as opcode, step (u64), time (f64), count
// (u32) and count x,y float32 pairs, all little-endian.
func EncodeFrame(f sim.Frame) []byte {
	buf := make([]byte, headerSize+8*len(f.Positions))
	buf[0] = OpCodeFrame
	binary.LittleEndian.PutUint64(buf[1:], f.Step)
	binary.LittleEndian.PutUint64(buf[9:], math.Float64bits(f.Time))
	binary.LittleEndian.PutUint32(buf[17:], uint32(len(f.Positions)))

	off := headerSize
	for _, p := range f.Positions {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(p.Y))
		off += 8
	}
	return buf
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(b []byte) (sim.Frame, error) {
	if len(b) < headerSize || b[0] != OpCodeFrame {
		return sim.Frame{}, ErrShortFrame
	}
	count := binary.LittleEndian.Uint32(b[17:])
	if uint64(len(b)-headerSize) != 8*uint64(count) {
		return sim.Frame{}, ErrShortFrame
	}
	n := int(count)

	f := sim.Frame{
		Step:      binary.LittleEndian.Uint64(b[1:]),
		Time:      math.Float64frombits(binary.LittleEndian.Uint64(b[9:])),
		Positions: make([]particles.Vec2, n),
	}
	off := headerSize
	for i := range f.Positions {
		f.Positions[i] = particles.Vec2{
			X: math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
		}
		off += 8
	}
	return f, nil
}
