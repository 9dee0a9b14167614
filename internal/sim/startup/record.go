package startup

// Record is a value copy of a startup's observable state.
type Record struct {
	ID         int     `json:"id"`
	Capital    float64 `json:"capital"`
	Burn       float64 `json:"burn_rate"`
	Revenue    float64 `json:"revenue"`
	PMF        float64 `json:"pmf"`
	Valuation  float64 `json:"valuation"`
	Funding    float64 `json:"funding_received"`
	Alive      bool    `json:"alive"`
	DeathMonth int     `json:"death_month,omitempty"`
}

func (s *Startup) Record() Record {
	return Record{
		ID:         s.ID,
		Capital:    s.Capital,
		Burn:       s.Burn,
		Revenue:    s.Revenue,
		PMF:        s.PMF,
		Valuation:  s.Valuation,
		Funding:    s.funding,
		Alive:      !s.dead,
		DeathMonth: s.deathMonth,
	}
}
