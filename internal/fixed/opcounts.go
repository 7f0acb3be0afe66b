package fixed

// OpCounts tallies the limb-level work done by a kernel, for diagnostics.
type OpCounts struct {
	Multiplications int64 `json:"multiplications"`
	Additions       int64 `json:"additions"`
	Negations       int64 `json:"negations"`
	Conversions     int64 `json:"conversions"`
	Splits          int64 `json:"splits"`
	Comparisons     int64 `json:"comparisons"`

	// UsedCalcs and UnusedCalcs count per-point iterations that did and did not
	// contribute to a result. Unused calculations come from finished points that
	// share a lane group with points still in play.
	UsedCalcs   int64 `json:"usedCalcs"`
	UnusedCalcs int64 `json:"unusedCalcs"`
}

// Add rolls o into c.
func (c *OpCounts) Add(o OpCounts) {
	c.Multiplications += o.Multiplications
	c.Additions += o.Additions
	c.Negations += o.Negations
	c.Conversions += o.Conversions
	c.Splits += o.Splits
	c.Comparisons += o.Comparisons
	c.UsedCalcs += o.UsedCalcs
	c.UnusedCalcs += o.UnusedCalcs
}

// Reset zeroes every counter.
func (c *OpCounts) Reset() {
	*c = OpCounts{}
}
