package imgformat

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads TiPi problem files written by Writer.
type Reader struct {
	r        io.ReadSeeker
	encoding Encoding

	hasResult     bool
	problemOffset uint64
	resultOffset  uint64
}

// NewReader reads and validates the file header, then the trailing index,
// leaving the Reader positioned to serve LoadProblem/LoadResult.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	reader := &Reader{r: r}
	if err := reader.readHeader(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.r, magic); err != nil {
		return fmt.Errorf("imgformat: reading magic number: %w", err)
	}
	if string(magic) != MagicNumber {
		return ErrInvalidMagic
	}

	var version uint16
	if err := binary.Read(r.r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("imgformat: reading version: %w", err)
	}
	if version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	flags := make([]byte, 2)
	if _, err := io.ReadFull(r.r, flags); err != nil {
		return fmt.Errorf("imgformat: reading flags: %w", err)
	}
	r.hasResult = flags[0] != 0
	r.encoding = Encoding(flags[1])

	var indexOffset uint64
	if err := binary.Read(r.r, binary.LittleEndian, &indexOffset); err != nil {
		return fmt.Errorf("imgformat: reading index offset: %w", err)
	}

	return r.readIndexAt(indexOffset)
}

func (r *Reader) readIndexAt(offset uint64) error {
	if _, err := r.r.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("imgformat: seeking to index chunk: %w", err)
	}
	id, body, err := r.readChunk()
	if err != nil {
		return err
	}
	if id != ChunkTypeIndex {
		return fmt.Errorf("%w: expected index chunk, got %q", ErrInvalidChunk, id)
	}

	c := newCursor(body)
	r.problemOffset, err = c.readUint64()
	if err != nil {
		return err
	}
	r.hasResult, err = c.readBool()
	if err != nil {
		return err
	}
	r.resultOffset, err = c.readUint64()
	if err != nil {
		return err
	}
	return nil
}

func (r *Reader) readChunk() (string, []byte, error) {
	id := make([]byte, 4)
	if _, err := io.ReadFull(r.r, id); err != nil {
		return "", nil, fmt.Errorf("imgformat: reading chunk id: %w", err)
	}
	var size uint64
	if err := binary.Read(r.r, binary.LittleEndian, &size); err != nil {
		return "", nil, fmt.Errorf("imgformat: reading chunk size: %w", err)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return "", nil, fmt.Errorf("imgformat: reading chunk body: %w", err)
	}
	return string(id), body, nil
}

// HasResult reports whether the file carries a result chunk.
func (r *Reader) HasResult() bool { return r.hasResult }

// LoadProblem seeks to and decodes the problem chunk.
func (r *Reader) LoadProblem() (*Problem, error) {
	if _, err := r.r.Seek(int64(r.problemOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("imgformat: seeking to problem chunk: %w", err)
	}
	id, body, err := r.readChunk()
	if err != nil {
		return nil, err
	}
	if id != ChunkTypeProblem {
		return nil, fmt.Errorf("%w: expected problem chunk, got %q", ErrInvalidChunk, id)
	}
	return r.parseProblemBody(body)
}

// LoadResult seeks to and decodes the result chunk. It returns ErrNoResult
// if the file has none.
func (r *Reader) LoadResult() (*Result, error) {
	if !r.hasResult {
		return nil, ErrNoResult
	}
	if _, err := r.r.Seek(int64(r.resultOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("imgformat: seeking to result chunk: %w", err)
	}
	id, body, err := r.readChunk()
	if err != nil {
		return nil, err
	}
	if id != ChunkTypeResult {
		return nil, fmt.Errorf("%w: expected result chunk, got %q", ErrInvalidChunk, id)
	}
	return r.parseResultBody(body)
}

func (r *Reader) parseProblemBody(body []byte) (*Problem, error) {
	c := newCursor(body)
	p := &Problem{}

	var err error
	if p.ObjectShape, err = c.readIntSlice(); err != nil {
		return nil, err
	}
	if p.DataShape, err = c.readIntSlice(); err != nil {
		return nil, err
	}
	if p.PSFShape, err = c.readIntSlice(); err != nil {
		return nil, err
	}
	if p.PSF, err = c.readSampleChunk(r.encoding); err != nil {
		return nil, err
	}
	if p.Data, err = c.readSampleChunk(r.encoding); err != nil {
		return nil, err
	}
	if p.Weights, err = c.readOptionalFloatSlice(r.encoding); err != nil {
		return nil, err
	}
	if p.Normalize, err = c.readBool(); err != nil {
		return nil, err
	}
	if p.CenterOff, err = c.readIntSlice(); err != nil {
		return nil, err
	}
	if p.Mu, err = c.readFloat64(); err != nil {
		return nil, err
	}
	if p.Eps, err = c.readFloat64(); err != nil {
		return nil, err
	}
	if p.Delta, err = c.readOptionalFloatSlice(EncodingF64); err != nil {
		return nil, err
	}
	if p.Lower, err = c.readOptionalFloatSlice(EncodingF64); err != nil {
		return nil, err
	}
	if p.Upper, err = c.readOptionalFloatSlice(EncodingF64); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Reader) parseResultBody(body []byte) (*Result, error) {
	c := newCursor(body)
	res := &Result{}

	var err error
	if res.Object, err = c.readSampleChunk(r.encoding); err != nil {
		return nil, err
	}
	if res.Cost, err = c.readFloat64(); err != nil {
		return nil, err
	}
	if res.Status, err = c.readString(); err != nil {
		return nil, err
	}
	iter, err := c.readInt32()
	if err != nil {
		return nil, err
	}
	res.Iterations = int(iter)
	return res, nil
}

// LoadProblemFile reads a complete problem file in one call.
func LoadProblemFile(r io.ReadSeeker) (*ProblemFile, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	problem, err := reader.LoadProblem()
	if err != nil {
		return nil, err
	}

	f := &ProblemFile{Version: CurrentVersion, Problem: *problem, HasResult: reader.HasResult()}
	if f.HasResult {
		result, err := reader.LoadResult()
		if err != nil {
			return nil, err
		}
		f.Result = *result
	}
	return f, nil
}
