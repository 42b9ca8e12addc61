package imgformat

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes TiPi problem files.
type Writer struct {
	w         io.WriteSeeker
	encoding  Encoding
	hasResult bool

	currentPos    uint64
	problemOffset uint64
	resultOffset  uint64
}

// NewWriter creates a new Writer that writes to w, encoding sample chunks
// (PSF, data, weights, object) with enc. w must support seeking so the
// index offset can be backpatched into the header.
func NewWriter(w io.WriteSeeker, enc Encoding) *Writer {
	return &Writer{w: w, encoding: enc}
}

// WriteHeader writes the file header. hasResult must say upfront whether
// WriteResult will be called, since the flags are written before the
// chunks that depend on them.
func (w *Writer) WriteHeader(hasResult bool) error {
	w.hasResult = hasResult

	if _, err := w.w.Write([]byte(MagicNumber)); err != nil {
		return fmt.Errorf("imgformat: writing magic number: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, CurrentVersion); err != nil {
		return fmt.Errorf("imgformat: writing version: %w", err)
	}
	hr := byte(0)
	if hasResult {
		hr = 1
	}
	if _, err := w.w.Write([]byte{hr, byte(w.encoding)}); err != nil {
		return fmt.Errorf("imgformat: writing flags: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint64(0)); err != nil { // index offset placeholder
		return fmt.Errorf("imgformat: writing index offset placeholder: %w", err)
	}

	w.currentPos = FileHeaderSize
	return nil
}

// WriteProblem writes the problem chunk. Must be called after WriteHeader.
func (w *Writer) WriteProblem(p *Problem) error {
	w.problemOffset = w.currentPos
	body, err := w.buildProblemBody(p)
	if err != nil {
		return err
	}
	return w.writeChunk(ChunkTypeProblem, body)
}

// WriteResult writes the result chunk. Must be called after WriteProblem,
// and only if WriteHeader was called with hasResult=true.
func (w *Writer) WriteResult(r *Result) error {
	if !w.hasResult {
		return fmt.Errorf("imgformat: WriteResult called but WriteHeader(hasResult=false)")
	}
	w.resultOffset = w.currentPos
	body := w.buildResultBody(r)
	return w.writeChunk(ChunkTypeResult, body)
}

// Close writes the trailing index chunk and backpatches the header's
// index offset field.
func (w *Writer) Close() error {
	indexOffset := w.currentPos
	indexData := w.buildIndexBody()
	if err := w.writeChunk(ChunkTypeIndex, indexData); err != nil {
		return err
	}

	if _, err := w.w.Seek(8, io.SeekStart); err != nil { // Magic(4)+Version(2)+flags(2)
		return fmt.Errorf("imgformat: seeking to index offset field: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, indexOffset); err != nil {
		return fmt.Errorf("imgformat: writing index offset: %w", err)
	}
	return nil
}

func (w *Writer) writeChunk(id string, body []byte) error {
	if _, err := w.w.Write([]byte(id)); err != nil {
		return fmt.Errorf("imgformat: writing %s chunk id: %w", id, err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(body))); err != nil {
		return fmt.Errorf("imgformat: writing %s chunk size: %w", id, err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("imgformat: writing %s chunk body: %w", id, err)
	}
	w.currentPos += ChunkHeaderSize + uint64(len(body))
	return nil
}

func (w *Writer) buildProblemBody(p *Problem) ([]byte, error) {
	var buf []byte
	buf = appendIntSlice(buf, p.ObjectShape)
	buf = appendIntSlice(buf, p.DataShape)
	buf = appendIntSlice(buf, p.PSFShape)

	psfBytes, err := encodeSamples(w.encoding, p.PSF)
	if err != nil {
		return nil, err
	}
	buf = appendSampleChunk(buf, psfBytes)

	dataBytes, err := encodeSamples(w.encoding, p.Data)
	if err != nil {
		return nil, err
	}
	buf = appendSampleChunk(buf, dataBytes)

	buf = appendOptionalFloatSlice(buf, w.encoding, p.Weights)
	buf = appendBool(buf, p.Normalize)
	buf = appendIntSlice(buf, p.CenterOff)
	buf = appendFloat64(buf, p.Mu)
	buf = appendFloat64(buf, p.Eps)
	buf = appendOptionalFloatSlice(buf, EncodingF64, p.Delta)
	buf = appendOptionalFloatSlice(buf, EncodingF64, p.Lower)
	buf = appendOptionalFloatSlice(buf, EncodingF64, p.Upper)
	return buf, nil
}

func (w *Writer) buildResultBody(r *Result) []byte {
	var buf []byte
	objBytes, _ := encodeSamples(w.encoding, r.Object) // w.encoding is always valid by construction
	buf = appendSampleChunk(buf, objBytes)
	buf = appendFloat64(buf, r.Cost)
	buf = appendString(buf, r.Status)
	buf = appendInt32(buf, int32(r.Iterations))
	return buf
}

func (w *Writer) buildIndexBody() []byte {
	var buf []byte
	buf = appendUint64(buf, w.problemOffset)
	buf = appendBool(buf, w.hasResult)
	buf = appendUint64(buf, w.resultOffset)
	return buf
}

// WriteProblemFile is a convenience function writing an entire problem (and
// optional result) in one call.
func WriteProblemFile(w io.WriteSeeker, enc Encoding, f *ProblemFile) error {
	writer := NewWriter(w, enc)
	if err := writer.WriteHeader(f.HasResult); err != nil {
		return err
	}
	if err := writer.WriteProblem(&f.Problem); err != nil {
		return err
	}
	if f.HasResult {
		if err := writer.WriteResult(&f.Result); err != nil {
			return err
		}
	}
	return writer.Close()
}
