package imgformat

import (
	"encoding/binary"
	"fmt"
	"math"
)

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	return appendUint32(buf, uint32(v))
}

func appendFloat64(buf []byte, v float64) []byte {
	return appendUint64(buf, math.Float64bits(v))
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// appendIntSlice encodes a nil-able []int as a presence byte, a count, and
// the int32 elements.
func appendIntSlice(buf []byte, v []int) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendUint32(buf, uint32(len(v)))
	for _, x := range v {
		buf = appendInt32(buf, int32(x))
	}
	return buf
}

// appendSampleChunk encodes a mandatory, already-encoded sample buffer as a
// byte-length prefix followed by the raw bytes.
func appendSampleChunk(buf []byte, encoded []byte) []byte {
	buf = appendUint32(buf, uint32(len(encoded)))
	return append(buf, encoded...)
}

// appendOptionalFloatSlice encodes a nil-able []float64 as a presence byte,
// an element count, and the enc-encoded sample bytes.
func appendOptionalFloatSlice(buf []byte, enc Encoding, v []float64) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendUint32(buf, uint32(len(v)))
	encoded, err := encodeSamples(enc, v)
	if err != nil {
		// enc is always one this package produced; a failure here means a
		// caller-supplied Encoding constant outside the known set, which
		// buildProblemBody already validated when encoding PSF/Data first.
		panic(err)
	}
	return append(buf, encoded...)
}

// cursor is a sequential reader over an in-memory chunk body.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("%w: truncated chunk body", ErrCorruptedData)
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) readUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readUint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readInt32() (int32, error) {
	v, err := c.readUint32()
	return int32(v), err
}

func (c *cursor) readFloat64() (float64, error) {
	v, err := c.readUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (c *cursor) readBool() (bool, error) {
	b, err := c.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (c *cursor) readString() (string, error) {
	n, err := c.readUint32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) readIntSlice() ([]int, error) {
	present, err := c.readBool()
	if err != nil || !present {
		return nil, err
	}
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		v, err := c.readInt32()
		if err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

func (c *cursor) readSampleChunk(enc Encoding) ([]float64, error) {
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	raw, err := c.take(int(n))
	if err != nil {
		return nil, err
	}
	return decodeSamples(enc, raw, sampleCount(enc, len(raw)))
}

func (c *cursor) readOptionalFloatSlice(enc Encoding) ([]float64, error) {
	present, err := c.readBool()
	if err != nil || !present {
		return nil, err
	}
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	raw, err := c.take(sampleByteLen(enc, int(n)))
	if err != nil {
		return nil, err
	}
	return decodeSamples(enc, raw, int(n))
}

func sampleCount(enc Encoding, byteLen int) int {
	switch enc {
	case EncodingF64:
		return byteLen / 8
	case EncodingF32:
		return byteLen / 4
	case EncodingF16:
		return byteLen / 2
	default:
		return 0
	}
}
