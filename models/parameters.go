package models

import "fmt"

const (
	// Degree bound must fit the single byte reserved for it in the disk
	// store header.
	MaxDegreeBound = 255
	// Promotion threshold for the tiered store's writable memtable.
	DefaultMemtableThreshold = 10000
)

// Parameters of the graph index. RInit is the random out-degree every node
// starts with before the index pass, RMax the hard degree cap enforced by
// pruning.
type GraphParameters struct {
	RInit int `yaml:"rInit" json:"rInit" envDefault:"5"`
	RMax  int `yaml:"rMax" json:"rMax" envDefault:"64"`
	// Occlusion threshold used by robust pruning, 1.0 is strictest. A
	// practical build does one 1.0 pass followed by one 1.2 pass.
	Alpha float32 `yaml:"alpha" json:"alpha" envDefault:"1.2"`
	// Search list size for greedy search, larger means higher recall at
	// higher cost.
	SearchSize int `yaml:"searchSize" json:"searchSize" envDefault:"75"`
}

func DefaultGraphParameters() GraphParameters {
	return GraphParameters{
		RInit:      5,
		RMax:       64,
		Alpha:      1.2,
		SearchSize: 75,
	}
}

func (p GraphParameters) Validate() error {
	if p.RInit < 1 {
		return fmt.Errorf("rInit (%d) must be at least 1", p.RInit)
	}
	if p.RInit > p.RMax {
		return fmt.Errorf("rInit (%d) must not exceed rMax (%d)", p.RInit, p.RMax)
	}
	if p.RMax > MaxDegreeBound {
		return fmt.Errorf("rMax (%d) must fit in a byte, at most %d", p.RMax, MaxDegreeBound)
	}
	if p.Alpha < 1.0 {
		return fmt.Errorf("alpha (%f) must be at least 1.0", p.Alpha)
	}
	if p.SearchSize < 1 {
		return fmt.Errorf("searchSize (%d) must be at least 1", p.SearchSize)
	}
	return nil
}
