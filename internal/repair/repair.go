package repair

// RunResult summarizes one pass over a batch of unresolved records.
type RunResult struct {
	Processed int `json:"processed"`
	Fixed     int `json:"fixed"`
}

// Add merges another result into this one.
func (r RunResult) Add(other RunResult) RunResult {
	return RunResult{
		Processed: r.Processed + other.Processed,
		Fixed:     r.Fixed + other.Fixed,
	}
}
