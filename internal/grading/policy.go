package grading

import "github.com/noah-isme/academic-records-api/pkg/config"

// Policy holds the grading bounds and thresholds.
type Policy struct {
	MinScore      float64
	MaxScore      float64
	PassThreshold float64
	WeightEpsilon float64
}

// DefaultPolicy is the 0.0 to 5.0 scale with a pass mark of 3.0.
func DefaultPolicy() Policy {
	return Policy{MinScore: 0, MaxScore: 5, PassThreshold: 3, WeightEpsilon: 0.01}
}

// PolicyFromConfig builds a Policy from grading configuration, falling back to defaults for
// unset thresholds.
func PolicyFromConfig(cfg config.GradingConfig) Policy {
	p := Policy{
		MinScore:      cfg.MinScore,
		MaxScore:      cfg.MaxScore,
		PassThreshold: cfg.PassThreshold,
		WeightEpsilon: cfg.WeightEpsilon,
	}
	if p.MaxScore <= p.MinScore {
		def := DefaultPolicy()
		p.MinScore, p.MaxScore = def.MinScore, def.MaxScore
	}
	if p.WeightEpsilon <= 0 {
		p.WeightEpsilon = DefaultPolicy().WeightEpsilon
	}
	return p
}

// InRange reports whether v lies within [MinScore, MaxScore].
func (p Policy) InRange(v float64) bool {
	return v >= p.MinScore && v <= p.MaxScore
}
