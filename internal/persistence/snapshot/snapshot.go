// Package snapshot stores a finished Monte Carlo batch as a single
// zstd-compressed file: a JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"startupsim.ai/internal/sim/montecarlo"
	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
)

const Version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

type Header struct {
	Version    int       `json:"version"`
	BatchID    string    `json:"batch_id"`
	Runs       int       `json:"runs"`
	BaseSeed   int64     `json:"base_seed"`
	Population int       `json:"population"`
	Horizon    int       `json:"horizon"`
	Created    time.Time `json:"created"`
}

type BatchV1 struct {
	Header Header

	Params   tuning.Params
	Started  time.Time
	Finished time.Time
	Summary  montecarlo.Summary
	Runs     []RunV1
}

type RunV1 struct {
	Index              int
	Seed               int64
	FailureRate        float64
	SuccessCount       int
	TopPercentileCount int
	AvgValuation       float64
	MedianValuation    float64
	SurvivalTimes      []int
	Deaths             []runner.Death
	Series             []runner.MonthStats
	Agents             []startup.Record
	FinalDigest        string
}

// FromResult converts a batch result. Per-month agent history is not kept.
func FromResult(res *montecarlo.Result) BatchV1 {
	b := BatchV1{
		Header: Header{
			Version:    Version,
			BatchID:    res.ID,
			Runs:       len(res.Runs),
			BaseSeed:   res.BaseSeed,
			Population: res.Population,
			Horizon:    res.Horizon,
			Created:    res.Finished,
		},
		Params:   res.Params,
		Started:  res.Started,
		Finished: res.Finished,
		Summary:  res.Summary,
		Runs:     make([]RunV1, len(res.Runs)),
	}
	for i, rr := range res.Runs {
		b.Runs[i] = RunV1{
			Index:              rr.Index,
			Seed:               rr.Seed,
			FailureRate:        rr.FailureRate,
			SuccessCount:       rr.SuccessCount,
			TopPercentileCount: rr.TopPercentileCount,
			AvgValuation:       rr.AvgValuation,
			MedianValuation:    rr.MedianValuation,
			SurvivalTimes:      rr.SurvivalTimes,
			Deaths:             rr.Deaths,
			Series:             rr.Series,
			Agents:             rr.Agents,
			FinalDigest:        rr.FinalDigest,
		}
	}
	return b
}

// Result converts the snapshot back into a batch result.
func (b BatchV1) Result() *montecarlo.Result {
	res := &montecarlo.Result{
		ID:         b.Header.BatchID,
		Params:     b.Params,
		BaseSeed:   b.Header.BaseSeed,
		Population: b.Header.Population,
		Horizon:    b.Header.Horizon,
		Started:    b.Started,
		Finished:   b.Finished,
		Summary:    b.Summary,
		Runs:       make([]montecarlo.RunResult, len(b.Runs)),
	}
	for i, r := range b.Runs {
		res.Runs[i] = montecarlo.RunResult{
			Index:              r.Index,
			Seed:               r.Seed,
			FailureRate:        r.FailureRate,
			SuccessCount:       r.SuccessCount,
			TopPercentileCount: r.TopPercentileCount,
			AvgValuation:       r.AvgValuation,
			MedianValuation:    r.MedianValuation,
			SurvivalTimes:      r.SurvivalTimes,
			Deaths:             r.Deaths,
			Series:             r.Series,
			Agents:             r.Agents,
			FinalDigest:        r.FinalDigest,
		}
	}
	return res
}

func WriteSnapshot(path string, snap BatchV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(enc, 256*1024)
	snap.Header.Version = Version
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func openSnapshot(path string) (*os.File, *zstd.Decoder, *bufio.Reader, Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, h, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, h, err
	}
	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err == nil {
		err = json.Unmarshal(line, &h)
	}
	if err == nil && h.Version != Version {
		err = fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if err != nil {
		dec.Close()
		_ = f.Close()
		return nil, nil, nil, h, fmt.Errorf("read header: %w", err)
	}
	return f, dec, br, h, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	f, dec, _, h, err := openSnapshot(path)
	if err != nil {
		return h, err
	}
	dec.Close()
	return h, f.Close()
}

func ReadSnapshot(path string) (BatchV1, error) {
	var snap BatchV1
	f, dec, br, _, err := openSnapshot(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
