package montecarlo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"startupsim.ai/internal/sim/tuning"
)

// SweepPoint is the outcome of one batch in a sweep.
type SweepPoint struct {
	Key     string
	Value   float64
	BatchID string
	Summary Summary
	Result  *Result
}

// Sweep runs one batch per value of key, all other parameters fixed. Every
// batch uses the same seeds so differences come from the parameter alone.
func Sweep(ctx context.Context, base Batch, key string, values []float64) ([]SweepPoint, error) {
	key = tuning.NormalizeKey(key)
	if _, err := base.Params.Get(key); err != nil {
		return nil, err
	}
	points := make([]SweepPoint, 0, len(values))
	for _, v := range values {
		p, err := base.Params.With(key, v)
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%v: %w", key, v, err)
		}
		b := base
		b.Params = p
		b.ID = uuid.NewString()
		res, err := b.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%v: %w", key, v, err)
		}
		points = append(points, SweepPoint{
			Key:     key,
			Value:   v,
			BatchID: res.ID,
			Summary: res.Summary,
			Result:  res,
		})
	}
	return points, nil
}
