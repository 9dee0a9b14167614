// Package monthlog stores the per-month series of a run as zstd-compressed
// JSON lines: a header line followed by one line per month.
package monthlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/tuning"
)

const Version = 1

// Header is the first line of every month log. It carries everything needed
// to rebuild the run.
type Header struct {
	Version      int           `json:"version"`
	BatchID      string        `json:"batch_id"`
	Run          int           `json:"run"`
	Seed         int64         `json:"seed"`
	Population   int           `json:"population"`
	Horizon      int           `json:"horizon"`
	ParamsDigest string        `json:"params_digest"`
	Params       tuning.Params `json:"params"`
}

// Path is the log file of one run inside dir.
func Path(dir string, run int) string {
	return filepath.Join(dir, fmt.Sprintf("run-%04d.jsonl.zst", run))
}

// JSONLZstdWriter appends JSON values, one per line, to a zstd stream.
type JSONLZstdWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) (*JSONLZstdWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLZstdWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.w, w.enc, w.f = nil, nil, nil
	return err
}

// Writer writes one run's month log.
type Writer struct {
	w      *JSONLZstdWriter
	months int
}

// Create opens path and writes the header line.
func Create(path string, h Header) (*Writer, error) {
	h.Version = Version
	if h.ParamsDigest == "" {
		h.ParamsDigest = h.Params.Digest()
	}
	jw, err := NewJSONLZstdWriter(path)
	if err != nil {
		return nil, err
	}
	if err := jw.Write(h); err != nil {
		_ = jw.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{w: jw}, nil
}

func (w *Writer) WriteMonth(ms runner.MonthStats) error {
	if err := w.w.Write(ms); err != nil {
		return fmt.Errorf("write month %d: %w", ms.Month, err)
	}
	w.months++
	return nil
}

func (w *Writer) Months() int { return w.months }

func (w *Writer) Close() error { return w.w.Close() }

// WriteRun writes a complete series in one go.
func WriteRun(path string, h Header, series []runner.MonthStats) error {
	w, err := Create(path, h)
	if err != nil {
		return err
	}
	for _, ms := range series {
		if err := w.WriteMonth(ms); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
