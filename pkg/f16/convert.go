// Package f16 provides IEEE 754 half-precision (float16) conversion for
// the sample buffers pkg/imgformat stores at EncodingF16: object, PSF,
// and data arrays, which the rest of the module always carries as
// []float64. There is no multi-channel interleaving here, since an image
// or a PSF array is a single plane of samples, not a bank of audio
// channels.
package f16

import (
	"encoding/binary"
	"math"
)

// Float32ToF16 converts a slice of float32 values to IEEE 754 half-precision (f16) bytes.
// Output is little-endian encoded, 2 bytes per value.
func Float32ToF16(values []float32) []byte {
	result := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(result[i*2:], float32ToF16(v))
	}
	return result
}

// F16ToFloat32 converts a slice of IEEE 754 half-precision (f16) bytes to float32 values.
// Input must be little-endian encoded, 2 bytes per value.
func F16ToFloat32(data []byte) []float32 {
	if len(data)%2 != 0 {
		panic("F16ToFloat32: input length must be even")
	}
	result := make([]float32, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		bits := binary.LittleEndian.Uint16(data[i : i+2])
		result[i/2] = f16ToFloat32(bits)
	}
	return result
}

// float32ToF16 converts a single float32 value to IEEE 754 half-precision (16-bit) representation.
// Based on the IEEE 754 standard conversion algorithm.
func float32ToF16(value float32) uint16 {
	// Get the bit representation of the float32
	bits := math.Float32bits(value)

	// Extract sign (1 bit)
	sign := (bits >> 31) & 0x1

	// Extract exponent (8 bits)
	exponent := (bits >> 23) & 0xFF

	// Extract mantissa (23 bits)
	mantissa := bits & 0x7FFFFF

	// Handle special cases
	if exponent == 0xFF {
		// Infinity or NaN
		if mantissa == 0 {
			// Infinity
			return uint16((sign << 15) | 0x7C00)
		}
		// NaN - preserve quiet/signaling bit
		return uint16((sign << 15) | 0x7C00 | ((mantissa >> 13) & 0x3FF))
	}

	if exponent == 0 {
		// Zero or subnormal
		if mantissa == 0 {
			return uint16(sign << 15) // Signed zero
		}
		// Subnormal float32 -> denormalized float16 or zero
		// For now, flush to zero (can be improved)
		return uint16(sign << 15)
	}

	// Normalize exponent from float32 (bias 127) to float16 (bias 15)
	newExponent := int(exponent) - 127 + 15

	// Handle exponent overflow
	if newExponent >= 31 {
		// Overflow to infinity
		return uint16((sign << 15) | 0x7C00)
	}

	// Handle exponent underflow
	if newExponent <= 0 {
		// Underflow to zero or subnormal
		return uint16(sign << 15)
	}

	// Round mantissa from 23 bits to 10 bits
	// Shift right by 13 bits and apply rounding (round-to-nearest-even)
	roundedMantissa := (mantissa + 0xFFF + ((mantissa >> 13) & 1)) >> 13

	// Check for mantissa overflow after rounding
	if roundedMantissa > 0x3FF {
		newExponent++
		roundedMantissa = 0
		if newExponent >= 31 {
			// Overflow to infinity
			return uint16((sign << 15) | 0x7C00)
		}
	}

	// Combine sign, exponent, and mantissa
	return uint16((sign << 15) | (uint32(newExponent) << 10) | (roundedMantissa & 0x3FF))
}

// f16ToFloat32 converts a single IEEE 754 half-precision (16-bit) value to float32.
func f16ToFloat32(bits uint16) float32 {
	// Extract components
	sign := uint32((bits >> 15) & 0x1)
	exponent := uint32((bits >> 10) & 0x1F)
	mantissa := uint32(bits & 0x3FF)

	// Handle special cases
	if exponent == 31 {
		if mantissa == 0 {
			// Infinity
			return math.Float32frombits((sign << 31) | 0x7F800000)
		}
		// NaN
		return math.Float32frombits((sign << 31) | 0x7FC00000 | (mantissa << 13))
	}

	if exponent == 0 {
		if mantissa == 0 {
			// Zero
			return math.Float32frombits(sign << 31)
		}
		// Denormalized (subnormal) float16: value = mantissa * 2^-24,
		// exactly representable as a normalized float32
		v := float32(mantissa) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	}

	// Normalize exponent from float16 (bias 15) to float32 (bias 127)
	newExponent := exponent - 15 + 127

	// Shift mantissa from 10 bits to 23 bits (left by 13)
	newMantissa := mantissa << 13

	// Combine into float32 bit representation
	f32bits := (sign << 31) | (newExponent << 23) | newMantissa

	return math.Float32frombits(f32bits)
}

// QuantizationStats reports how much precision a round trip through f16
// costs a buffer of double-precision samples (an object, PSF, or data
// array), so a caller can decide whether EncodingF16 is acceptable for a
// given image before committing to it.
type QuantizationStats struct {
	MaxAbsError float64
	MaxRelError float64
	SNR         float64 // Signal-to-Noise Ratio in dB
}

// Quantize converts samples to f16 and back, reporting the round-trip
// error. samples is a row-major object/PSF/data array in the double
// precision the rest of the module works in.
func Quantize(samples []float64) QuantizationStats {
	if len(samples) == 0 {
		return QuantizationStats{}
	}

	f32 := make([]float32, len(samples))
	for i, v := range samples {
		f32[i] = float32(v)
	}
	reconstructed := F16ToFloat32(Float32ToF16(f32))

	var maxAbsErr, maxRelErr, sumSqError, signalPower float64
	for i, orig := range samples {
		err := float64(reconstructed[i]) - orig
		abserr := math.Abs(err)
		if abserr > maxAbsErr {
			maxAbsErr = abserr
		}

		absOrig := math.Abs(orig)
		if absOrig > 1e-10 {
			if relerr := abserr / absOrig; relerr > maxRelErr {
				maxRelErr = relerr
			}
		}

		sumSqError += err * err
		signalPower += orig * orig
	}

	n := float64(len(samples))
	snr := 0.0
	if sumSqError > 0 {
		noisePower := sumSqError / n
		signalPower /= n
		if signalPower > 0 {
			snr = 10 * math.Log10(signalPower/noisePower)
		}
	}

	return QuantizationStats{MaxAbsError: maxAbsErr, MaxRelError: maxRelErr, SNR: snr}
}
