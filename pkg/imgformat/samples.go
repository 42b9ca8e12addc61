package imgformat

import (
	"encoding/binary"
	"fmt"
	"math"

	"tipi/pkg/f16"
)

func encodeSamples(enc Encoding, data []float64) ([]byte, error) {
	switch enc {
	case EncodingF64:
		buf := make([]byte, len(data)*8)
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		return buf, nil
	case EncodingF32:
		buf := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}
		return buf, nil
	case EncodingF16:
		f32 := make([]float32, len(data))
		for i, v := range data {
			f32[i] = float32(v)
		}
		return f16.Float32ToF16(f32), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidEncoding, enc)
	}
}

func decodeSamples(enc Encoding, buf []byte, count int) ([]float64, error) {
	switch enc {
	case EncodingF64:
		if len(buf) != count*8 {
			return nil, fmt.Errorf("%w: f64 sample buffer length %d != %d", ErrCorruptedData, len(buf), count*8)
		}
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
		return out, nil
	case EncodingF32:
		if len(buf) != count*4 {
			return nil, fmt.Errorf("%w: f32 sample buffer length %d != %d", ErrCorruptedData, len(buf), count*4)
		}
		out := make([]float64, count)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		}
		return out, nil
	case EncodingF16:
		if len(buf) != count*2 {
			return nil, fmt.Errorf("%w: f16 sample buffer length %d != %d", ErrCorruptedData, len(buf), count*2)
		}
		f32 := f16.F16ToFloat32(buf)
		out := make([]float64, count)
		for i, v := range f32 {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidEncoding, enc)
	}
}

func sampleByteLen(enc Encoding, count int) int {
	switch enc {
	case EncodingF64:
		return count * 8
	case EncodingF32:
		return count * 4
	case EncodingF16:
		return count * 2
	default:
		return 0
	}
}
