// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date            time.Time `json:"date"`              // The timestamp recorded by the genesis block.
	ChainID         uint16    `json:"chain_id"`          // The chain id represents an unique id for this running instance.
	TransPerBlock   uint16    `json:"trans_per_block"`   // The block capacity used to compute proposal load.
	Difficulty      uint16    `json:"difficulty"`        // Starting difficulty level for the search based puzzles.
	TargetBlockTime Duration  `json:"target_block_time"` // The desired time between two blocks.
	Consensus       Consensus `json:"consensus"`
}

// Consensus carries the parameters of the different proof strategies.
type Consensus struct {
	Authorities       []string `json:"authorities"`         // Authority-rotation identities.
	MinValueThreshold float64  `json:"min_value_threshold"` // Starting value threshold for weighted selection.
	ReputationWeight  float64  `json:"reputation_weight"`
	DiversityFactor   float64  `json:"diversity_factor"`
	ReputationGain    float64  `json:"reputation_gain"`
}

// Default returns the genesis values used when no genesis file exists.
func Default() Genesis {
	return Genesis{
		Date:            time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:         1,
		TransPerBlock:   10,
		Difficulty:      1,
		TargetBlockTime: Duration(10 * time.Second),
		Consensus: Consensus{
			MinValueThreshold: 10.0,
			ReputationWeight:  0.6,
			DiversityFactor:   0.4,
			ReputationGain:    0.1,
		},
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Any value not provided by the
// file keeps its default.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// =============================================================================

// Duration is a time.Duration that reads and writes as a string like "10s".
type Duration time.Duration

// MarshalJSON implements the json.Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)
	return nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
