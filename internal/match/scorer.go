package match

import (
	"fmt"

	"autoradar/matcher-service/internal/model"
)

// Config holds the scoring thresholds and tolerances. Passed in explicitly
// so tests can exercise boundary values deterministically.
type Config struct {
	MatchThreshold    float64 // minimum actionable score
	PerfectThreshold  float64 // score treated as a perfect match
	PriceTolerancePct float64 // band width as a fraction of the price range
	YearTolerance     int     // years outside the range that still score > 0
	NoCriteriaScore   float64 // fixed score for alerts with zero criteria
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:    0.65,
		PerfectThreshold:  0.9,
		PriceTolerancePct: 0.10,
		YearTolerance:     2,
		NoCriteriaScore:   0.1,
	}
}

// ErrInvalidCriteria marks an alert with internally inconsistent ranges
// (min > max). The orchestrator skips such alerts with a warning.
var ErrInvalidCriteria = fmt.Errorf("alert has inconsistent range criteria")

// Scorer evaluates (alert, listing) pairs through its registered criteria.
type Scorer struct {
	cfg      Config
	criteria []Criterion
}

// NewScorer builds a Scorer with the full criterion list.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{
		cfg: cfg,
		criteria: []Criterion{
			makeCriterion{},
			modelCriterion{},
			priceCriterion{tolerancePct: cfg.PriceTolerancePct},
			yearCriterion{tolerance: cfg.YearTolerance},
			mileageCriterion{},
			fuelCriterion{},
			transmissionCriterion{},
			bodyTypeCriterion{},
			locationCriterion{},
		},
	}
}

// ValidateAlert rejects alerts whose ranges are internally inconsistent.
func ValidateAlert(a *model.Alert) error {
	if a.PriceMin != nil && a.PriceMax != nil && *a.PriceMin > *a.PriceMax {
		return fmt.Errorf("%w: price_min %.2f > price_max %.2f", ErrInvalidCriteria, *a.PriceMin, *a.PriceMax)
	}
	if a.YearMin != nil && a.YearMax != nil && *a.YearMin > *a.YearMax {
		return fmt.Errorf("%w: year_min %d > year_max %d", ErrInvalidCriteria, *a.YearMin, *a.YearMax)
	}
	return nil
}

// Score computes the match result for one pair. It returns nil (no error)
// when a hard criterion is specified and failed — "if I said BMW, don't
// show me Audi". It never returns an error for missing listing fields;
// those count as unsatisfied.
func (s *Scorer) Score(a *model.Alert, l *model.Listing) (*model.MatchResult, error) {
	if err := ValidateAlert(a); err != nil {
		return nil, err
	}

	var (
		total, weights float64
		matched        []string
		specified      int
	)
	for _, c := range s.criteria {
		ev := c.Evaluate(a, l)
		if !ev.Specified {
			continue
		}
		if ev.Hard && !ev.Satisfied {
			return nil, nil
		}
		specified++
		w := c.Weight()
		weights += w
		total += w * ev.Score
		if ev.Satisfied {
			matched = append(matched, c.Name())
		}
	}

	// An alert with no criteria at all matches weakly rather than erroring
	// or matching everything.
	score := s.cfg.NoCriteriaScore
	if specified > 0 {
		score = clamp01(total / weights)
	}

	return &model.MatchResult{
		Score:           score,
		MatchedCriteria: matched,
		Actionable:      score >= s.cfg.MatchThreshold,
		Perfect:         score >= s.cfg.PerfectThreshold,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
