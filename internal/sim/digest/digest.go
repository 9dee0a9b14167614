// Package digest computes the sha256 state digest of a run. Two runs with the
// same parameters and seed must produce identical digests month by month.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/world"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) {
	writeU64(h, tmp, uint64(v))
}

func writeF64(h hashWriter, tmp *[8]byte, v float64) {
	writeU64(h, tmp, math.Float64bits(v))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// State hashes the world header followed by every startup in id order.
func State(w *world.World, pop []*startup.Startup) string {
	h := sha256.New()
	var tmp [8]byte

	writeI64(h, &tmp, int64(w.Step))
	writeI64(h, &tmp, int64(w.Initial))
	writeF64(h, &tmp, w.Market)
	writeF64(h, &tmp, w.Competition)

	writeU64(h, &tmp, uint64(len(pop)))
	for _, a := range pop {
		writeStartup(h, &tmp, a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeStartup(h hashWriter, tmp *[8]byte, a *startup.Startup) {
	writeI64(h, tmp, int64(a.ID))
	writeF64(h, tmp, a.Capital)
	writeF64(h, tmp, a.Burn)
	writeF64(h, tmp, a.Revenue)
	writeF64(h, tmp, a.PMF)
	writeF64(h, tmp, a.Valuation)
	writeF64(h, tmp, a.Runway())
	writeF64(h, tmp, a.FundingReceived())
	month, dead := a.DeathMonth()
	h.Write([]byte{boolByte(dead), boolByte(a.JustFunded())})
	writeI64(h, tmp, int64(month))
}
