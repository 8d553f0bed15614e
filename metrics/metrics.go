package metrics

// Metrics are the figures derived from one trace replay.
type Metrics struct {
	// Accuracy is correct/total, or 0 for an empty trace.
	Accuracy float64 `json:"accuracy"`
	// Mispredictions is total-correct.
	Mispredictions uint64 `json:"mispredictions"`
	// MPKI is mispredictions per thousand instructions.
	MPKI float64 `json:"mpki"`
	// CPI is the base CPI plus the misprediction stall contribution.
	CPI float64 `json:"cpi"`
	// Cycles is CPI times the assumed instruction count.
	Cycles float64 `json:"cycles"`
	// Seconds is Cycles at the configured frequency.
	Seconds float64 `json:"seconds"`
}

// Compute derives Metrics from hit counts. The config must have passed
// Validate.
func Compute(c *Config, correct, total uint64) Metrics {
	var m Metrics

	if total > 0 {
		m.Accuracy = float64(correct) / float64(total)
	}
	if total > correct {
		m.Mispredictions = total - correct
	}

	instructions := float64(c.InstructionsPerTrace)
	m.MPKI = float64(m.Mispredictions) * 1000.0 / instructions
	m.CPI = c.BaseCPI + c.MispredictPenalty*m.MPKI/1000.0
	m.Cycles = m.CPI * instructions
	m.Seconds = m.Cycles / float64(c.Frequency)

	return m
}
