package monthlog

import (
	"errors"
	"fmt"
	"io"

	"startupsim.ai/internal/sim/runner"
)

var ErrDigestMismatch = errors.New("monthlog: digest mismatch")

// Verify rebuilds the run described by the log header and checks every
// logged month digest against a fresh simulation. It returns the number of
// months checked.
func Verify(path string, opts ...runner.Option) (int, error) {
	lr, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer lr.Close()

	h := lr.Header()
	if got := h.Params.Digest(); h.ParamsDigest != "" && got != h.ParamsDigest {
		return 0, fmt.Errorf("%w: params digest %s, header says %s", ErrDigestMismatch, got, h.ParamsDigest)
	}
	r, err := runner.New(h.Params, h.Population, h.Seed, opts...)
	if err != nil {
		return 0, err
	}

	checked := 0
	for {
		want, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return checked, err
		}
		got, err := r.Step()
		if err != nil {
			return checked, err
		}
		if got.Month != want.Month {
			return checked, fmt.Errorf("%w: expected month %d, log has %d", ErrDigestMismatch, got.Month, want.Month)
		}
		if got.Digest != want.Digest {
			return checked, fmt.Errorf("%w: month %d: want %s got %s", ErrDigestMismatch, want.Month, want.Digest, got.Digest)
		}
		checked++
	}
	if h.Horizon > 0 && checked != h.Horizon {
		return checked, fmt.Errorf("monthlog: log has %d months, header says %d", checked, h.Horizon)
	}
	return checked, nil
}
