package monthlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"startupsim.ai/internal/sim/runner"
)

var ErrBadHeader = errors.New("monthlog: bad header")

// Reader iterates the months of a log after its header.
type Reader struct {
	f      *os.File
	dec    *zstd.Decoder
	sc     *bufio.Scanner
	header Header
	line   int
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	r := &Reader{f: f, dec: dec, sc: sc}

	if !sc.Scan() {
		err := sc.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		_ = r.Close()
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	r.line = 1
	if err := json.Unmarshal(sc.Bytes(), &r.header); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if r.header.Version != Version {
		_ = r.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, r.header.Version)
	}
	return r, nil
}

func (r *Reader) Header() Header { return r.header }

// Next returns the next month, or io.EOF after the last one.
func (r *Reader) Next() (runner.MonthStats, error) {
	var ms runner.MonthStats
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return ms, err
		}
		return ms, io.EOF
	}
	r.line++
	if err := json.Unmarshal(r.sc.Bytes(), &ms); err != nil {
		return ms, fmt.Errorf("line %d: unmarshal: %w", r.line, err)
	}
	return ms, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll loads a whole log.
func ReadAll(path string) (Header, []runner.MonthStats, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	var series []runner.MonthStats
	for {
		ms, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), series, nil
		}
		if err != nil {
			return Header{}, nil, err
		}
		series = append(series, ms)
	}
}
