// Package match scores listings against alert criteria.
//
// Criteria come in two tiers: hard criteria (make, model) exclude the pair
// outright when specified and failed; soft criteria only contribute to the
// weighted score. Price and year sit in between — they use a tolerance band
// that degrades the score outside the range instead of excluding.
package match

import (
	"strings"

	"autoradar/matcher-service/internal/model"
)

// Evaluation is the outcome of one criterion against one pair.
type Evaluation struct {
	Specified bool    // the alert sets this criterion at all
	Satisfied bool    // counted into MatchedCriteria
	Score     float64 // [0,1] contribution
	Hard      bool    // Specified && !Satisfied rejects the pair
}

// Criterion evaluates one alert filter against a listing.
type Criterion interface {
	Name() string
	Weight() float64
	Evaluate(a *model.Alert, l *model.Listing) Evaluation
}

func notSpecified() Evaluation { return Evaluation{} }

// makeAliases maps common abbreviations to the brand name scrapers emit,
// so "VW" matches "Volkswagen" even though it is not a substring of it.
var makeAliases = map[string]string{
	"vw":    "volkswagen",
	"merc":  "mercedes-benz",
	"chevy": "chevrolet",
	"landy": "land rover",
}

func canonicalMake(s string) string {
	k := strings.ToLower(strings.TrimSpace(s))
	if v, ok := makeAliases[k]; ok {
		return v
	}
	return k
}

// textMatches reports a case-insensitive match: exact equality or substring
// containment in either direction. Handles "Golf" vs "Golf GTI" and
// "Mercedes" vs "Mercedes-Benz". An empty listing value never matches.
func textMatches(want, have string) bool {
	if have == "" {
		return false
	}
	w := strings.ToLower(strings.TrimSpace(want))
	h := strings.ToLower(strings.TrimSpace(have))
	return strings.Contains(h, w) || strings.Contains(w, h)
}

// bandScore scores a value against [min,max] with a linear tolerance band of
// width tol outside the range: 1.0 inside, degrading to 0 at distance tol.
func bandScore(value, min, max, tol float64, hasMin, hasMax bool) float64 {
	var dist float64
	switch {
	case hasMin && value < min:
		dist = min - value
	case hasMax && value > max:
		dist = value - max
	default:
		return 1.0
	}
	if tol <= 0 || dist >= tol {
		return 0
	}
	return 1.0 - dist/tol
}

// ─── Hard criteria ───────────────────────────────────────────────────────────

type makeCriterion struct{}

func (makeCriterion) Name() string    { return "make" }
func (makeCriterion) Weight() float64 { return 1.0 }
func (makeCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.Make == "" {
		return notSpecified()
	}
	if l.Make != "" && textMatches(canonicalMake(a.Make), canonicalMake(l.Make)) {
		return Evaluation{Specified: true, Satisfied: true, Score: 1, Hard: true}
	}
	return Evaluation{Specified: true, Hard: true}
}

type modelCriterion struct{}

func (modelCriterion) Name() string    { return "model" }
func (modelCriterion) Weight() float64 { return 1.0 }
func (modelCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.Model == "" {
		return notSpecified()
	}
	if textMatches(a.Model, l.Model) {
		return Evaluation{Specified: true, Satisfied: true, Score: 1, Hard: true}
	}
	return Evaluation{Specified: true, Hard: true}
}

// ─── Tolerance-band criteria ─────────────────────────────────────────────────

type priceCriterion struct {
	tolerancePct float64
}

func (priceCriterion) Name() string    { return "price" }
func (priceCriterion) Weight() float64 { return 1.0 }
func (c priceCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.PriceMin == nil && a.PriceMax == nil {
		return notSpecified()
	}
	if l.Price == nil {
		return Evaluation{Specified: true}
	}
	var min, max float64
	hasMin, hasMax := a.PriceMin != nil, a.PriceMax != nil
	if hasMin {
		min = *a.PriceMin
	}
	if hasMax {
		max = *a.PriceMax
	}
	// Tolerance window: a fraction of the range width, falling back to the
	// single bound when the range is open or degenerate.
	width := max - min
	if !hasMin || !hasMax || width <= 0 {
		if hasMax {
			width = max
		} else {
			width = min
		}
	}
	score := bandScore(*l.Price, min, max, c.tolerancePct*width, hasMin, hasMax)
	return Evaluation{Specified: true, Satisfied: score >= 1, Score: score}
}

type yearCriterion struct {
	tolerance int
}

func (yearCriterion) Name() string    { return "year" }
func (yearCriterion) Weight() float64 { return 0.8 }
func (c yearCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.YearMin == nil && a.YearMax == nil {
		return notSpecified()
	}
	if l.Year == nil {
		return Evaluation{Specified: true}
	}
	var min, max float64
	hasMin, hasMax := a.YearMin != nil, a.YearMax != nil
	if hasMin {
		min = float64(*a.YearMin)
	}
	if hasMax {
		max = float64(*a.YearMax)
	}
	score := bandScore(float64(*l.Year), min, max, float64(c.tolerance), hasMin, hasMax)
	return Evaluation{Specified: true, Satisfied: score >= 1, Score: score}
}

// ─── Soft criteria ───────────────────────────────────────────────────────────

type mileageCriterion struct{}

func (mileageCriterion) Name() string    { return "mileage" }
func (mileageCriterion) Weight() float64 { return 0.6 }
func (mileageCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.MaxMileageKM == nil {
		return notSpecified()
	}
	if l.MileageKM == nil || *l.MileageKM > *a.MaxMileageKM {
		return Evaluation{Specified: true}
	}
	return Evaluation{Specified: true, Satisfied: true, Score: 1}
}

type fuelCriterion struct{}

func (fuelCriterion) Name() string    { return "fuel_type" }
func (fuelCriterion) Weight() float64 { return 0.5 }
func (fuelCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	return equalsCriterion(a.FuelType, l.FuelType)
}

type transmissionCriterion struct{}

func (transmissionCriterion) Name() string    { return "transmission" }
func (transmissionCriterion) Weight() float64 { return 0.5 }
func (transmissionCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	return equalsCriterion(a.Transmission, l.Transmission)
}

type bodyTypeCriterion struct{}

func (bodyTypeCriterion) Name() string    { return "body_type" }
func (bodyTypeCriterion) Weight() float64 { return 0.5 }
func (bodyTypeCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	return equalsCriterion(a.BodyType, l.BodyType)
}

func equalsCriterion(want, have string) Evaluation {
	if want == "" {
		return notSpecified()
	}
	if have != "" && strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have)) {
		return Evaluation{Specified: true, Satisfied: true, Score: 1}
	}
	return Evaluation{Specified: true}
}

type locationCriterion struct{}

func (locationCriterion) Name() string    { return "location" }
func (locationCriterion) Weight() float64 { return 0.6 }
func (locationCriterion) Evaluate(a *model.Alert, l *model.Listing) Evaluation {
	if a.City == "" && a.Region == "" {
		return notSpecified()
	}
	if a.City != "" && textMatches(a.City, l.City) {
		return Evaluation{Specified: true, Satisfied: true, Score: 1}
	}
	if a.Region != "" && textMatches(a.Region, l.Region) {
		return Evaluation{Specified: true, Satisfied: true, Score: 1}
	}
	return Evaluation{Specified: true}
}
