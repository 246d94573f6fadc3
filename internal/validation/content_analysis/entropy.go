package content_analysis

import "math"

const (
	ConfidenceHigh   = 0.95
	ConfidenceMedium = 0.8
	ConfidenceLow    = 0.6
)

type ConfidenceConfig struct {
	HighEntropy   float64 `yaml:"high" json:"high"`
	MediumEntropy float64 `yaml:"medium" json:"medium"`
}

func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{HighEntropy: 4.5, MediumEntropy: 3.5}
}

type ConfidenceEstimator struct {
	config ConfidenceConfig
}

func NewConfidenceEstimator(config ConfidenceConfig) *ConfidenceEstimator {
	if config.MediumEntropy <= 0 || config.HighEntropy <= config.MediumEntropy {
		config = DefaultConfidenceConfig()
	}
	return &ConfidenceEstimator{config: config}
}

// Estimate maps entropy onto three buckets. Strictly greater-than comparisons.
func (c *ConfidenceEstimator) Estimate(s string) float64 {
	e := ShannonEntropy(s)
	switch {
	case e > c.config.HighEntropy:
		return ConfidenceHigh
	case e > c.config.MediumEntropy:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ShannonEntropy returns bits per character over the rune frequency
// distribution of s.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	n := 0
	for _, r := range s {
		freq[r]++
		n++
	}
	var entropy float64
	for _, count := range freq {
		p := float64(count) / float64(n)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
