package pfm

import (
	"bytes"
	"math"
	"testing"
)

func TestWriteParseRoundTrip(t *testing.T) {
	data := make([]float64, 6*4)
	for i := range data {
		data[i] = float64(i) * 0.37
	}
	in, err := FromFloat64(6, 4, data)
	if err != nil {
		t.Fatalf("FromFloat64: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if out.Width != 6 || out.Height != 4 || out.Channels != 1 {
		t.Fatalf("dims = %dx%dx%d, want 6x4x1", out.Width, out.Height, out.Channels)
	}

	got, err := out.ToFloat64()
	if err != nil {
		t.Fatalf("ToFloat64: %v", err)
	}
	for i := range data {
		if math.Abs(got[i]-data[i]) > 1e-5 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], data[i])
		}
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("P6\n4 4\n1.0\n")
	if _, err := Parse(buf); err != ErrNotPFM {
		t.Errorf("got err %v, want ErrNotPFM", err)
	}
}

func TestToFloat64RejectsMultiChannel(t *testing.T) {
	f := &File{Width: 2, Height: 2, Channels: 3, Data: make([]float32, 12)}
	if _, err := f.ToFloat64(); err == nil {
		t.Errorf("expected error for multi-channel raster")
	}
}

func TestFromFloat64RejectsShapeMismatch(t *testing.T) {
	if _, err := FromFloat64(3, 3, make([]float64, 8)); err == nil {
		t.Errorf("expected error for width*height mismatch")
	}
}
