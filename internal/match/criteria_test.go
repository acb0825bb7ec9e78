package match

import (
	"testing"

	"autoradar/matcher-service/internal/model"
)

func intp(v int) *int         { return &v }
func f64p(v float64) *float64 { return &v }

// ── textMatches ────────────────────────────────────────────────────────────

func TestTextMatches(t *testing.T) {
	cases := []struct {
		want, have string
		expect     bool
	}{
		{"BMW", "BMW", true},
		{"bmw", "BMW", true},
		{"Golf", "Golf GTI", true},
		{"Golf GTI", "Golf", true},
		{"Mercedes", "Mercedes-Benz", true},
		{"BMW", "Audi", false},
		{"BMW", "", false},
	}
	for _, c := range cases {
		if got := textMatches(c.want, c.have); got != c.expect {
			t.Errorf("textMatches(%q, %q) = %v, want %v", c.want, c.have, got, c.expect)
		}
	}
}

func TestCanonicalMake_Aliases(t *testing.T) {
	if canonicalMake("VW") != "volkswagen" {
		t.Errorf("canonicalMake(VW) = %q, want volkswagen", canonicalMake("VW"))
	}
	if canonicalMake("Audi") != "audi" {
		t.Errorf("canonicalMake(Audi) = %q, want audi", canonicalMake("Audi"))
	}
}

// ── make criterion ─────────────────────────────────────────────────────────

func TestMakeCriterion_AliasMatch(t *testing.T) {
	a := &model.Alert{Make: "VW"}
	l := &model.Listing{Make: "Volkswagen"}
	ev := makeCriterion{}.Evaluate(a, l)
	if !ev.Specified || !ev.Satisfied || !ev.Hard {
		t.Errorf("VW alert should match Volkswagen listing, got %+v", ev)
	}
}

func TestMakeCriterion_MismatchIsHard(t *testing.T) {
	a := &model.Alert{Make: "BMW"}
	l := &model.Listing{Make: "Audi"}
	ev := makeCriterion{}.Evaluate(a, l)
	if !ev.Specified || ev.Satisfied || !ev.Hard {
		t.Errorf("BMW alert vs Audi listing should be hard-unsatisfied, got %+v", ev)
	}
}

func TestMakeCriterion_MissingListingField(t *testing.T) {
	a := &model.Alert{Make: "BMW"}
	ev := makeCriterion{}.Evaluate(a, &model.Listing{})
	if !ev.Specified || ev.Satisfied {
		t.Errorf("listing without make should be unsatisfied, got %+v", ev)
	}
}

func TestMakeCriterion_Unspecified(t *testing.T) {
	ev := makeCriterion{}.Evaluate(&model.Alert{}, &model.Listing{Make: "BMW"})
	if ev.Specified {
		t.Errorf("empty alert make should be unspecified, got %+v", ev)
	}
}

// ── price tolerance band ───────────────────────────────────────────────────

func TestPriceCriterion_Band(t *testing.T) {
	c := priceCriterion{tolerancePct: 0.10}
	a := &model.Alert{PriceMin: f64p(15000), PriceMax: f64p(25000)} // tol = 1000

	cases := []struct {
		price float64
		score float64
	}{
		{18500, 1.0},
		{15000, 1.0},
		{25000, 1.0},
		{25500, 0.5},
		{14500, 0.5},
		{26000, 0.0},
		{30000, 0.0},
	}
	for _, tc := range cases {
		ev := c.Evaluate(a, &model.Listing{Price: f64p(tc.price)})
		if !ev.Specified {
			t.Fatalf("price %v: criterion should be specified", tc.price)
		}
		if !approx(ev.Score, tc.score) {
			t.Errorf("price %v: score = %v, want %v", tc.price, ev.Score, tc.score)
		}
		if ev.Hard {
			t.Errorf("price %v: price must never be a hard criterion", tc.price)
		}
	}
}

func TestPriceCriterion_Monotonic(t *testing.T) {
	c := priceCriterion{tolerancePct: 0.10}
	a := &model.Alert{PriceMin: f64p(15000), PriceMax: f64p(25000)}

	prev := 2.0
	for _, price := range []float64{25000, 25200, 25400, 25600, 25800, 26000, 27000, 40000} {
		ev := c.Evaluate(a, &model.Listing{Price: f64p(price)})
		if ev.Score > prev {
			t.Errorf("score at %v (%v) exceeds score at lower price (%v)", price, ev.Score, prev)
		}
		prev = ev.Score
	}
}

func TestPriceCriterion_OpenRange(t *testing.T) {
	c := priceCriterion{tolerancePct: 0.10}
	a := &model.Alert{PriceMax: f64p(20000)} // tol falls back to 10% of the bound

	if ev := c.Evaluate(a, &model.Listing{Price: f64p(5000)}); ev.Score != 1.0 {
		t.Errorf("price below an open max should score 1.0, got %v", ev.Score)
	}
	if ev := c.Evaluate(a, &model.Listing{Price: f64p(21000)}); !approx(ev.Score, 0.5) {
		t.Errorf("price 1000 over max with tol 2000 should score 0.5, got %v", ev.Score)
	}
}

func TestPriceCriterion_MissingListingPrice(t *testing.T) {
	c := priceCriterion{tolerancePct: 0.10}
	a := &model.Alert{PriceMax: f64p(20000)}
	ev := c.Evaluate(a, &model.Listing{})
	if !ev.Specified || ev.Satisfied || ev.Score != 0 {
		t.Errorf("missing price should be unsatisfied with score 0, got %+v", ev)
	}
}

// ── year tolerance band ────────────────────────────────────────────────────

func TestYearCriterion_Band(t *testing.T) {
	c := yearCriterion{tolerance: 2}
	a := &model.Alert{YearMin: intp(2018), YearMax: intp(2020)}

	cases := []struct {
		year  int
		score float64
	}{
		{2019, 1.0},
		{2018, 1.0},
		{2020, 1.0},
		{2021, 0.5},
		{2017, 0.5},
		{2022, 0.0},
		{2010, 0.0},
	}
	for _, tc := range cases {
		ev := c.Evaluate(a, &model.Listing{Year: intp(tc.year)})
		if !approx(ev.Score, tc.score) {
			t.Errorf("year %d: score = %v, want %v", tc.year, ev.Score, tc.score)
		}
	}
}

// ── soft criteria ──────────────────────────────────────────────────────────

func TestMileageCriterion(t *testing.T) {
	a := &model.Alert{MaxMileageKM: intp(100000)}
	if ev := (mileageCriterion{}).Evaluate(a, &model.Listing{MileageKM: intp(80000)}); !ev.Satisfied {
		t.Errorf("80000 km under a 100000 ceiling should satisfy, got %+v", ev)
	}
	if ev := (mileageCriterion{}).Evaluate(a, &model.Listing{MileageKM: intp(120000)}); ev.Satisfied {
		t.Errorf("120000 km over a 100000 ceiling should not satisfy, got %+v", ev)
	}
	if ev := (mileageCriterion{}).Evaluate(a, &model.Listing{}); ev.Satisfied || !ev.Specified {
		t.Errorf("missing mileage should be specified but unsatisfied, got %+v", ev)
	}
}

func TestFuelCriterion_CaseInsensitive(t *testing.T) {
	a := &model.Alert{FuelType: "Diesel"}
	if ev := (fuelCriterion{}).Evaluate(a, &model.Listing{FuelType: "diesel"}); !ev.Satisfied {
		t.Errorf("fuel match should be case-insensitive, got %+v", ev)
	}
	if ev := (fuelCriterion{}).Evaluate(a, &model.Listing{FuelType: "petrol"}); ev.Satisfied || ev.Hard {
		t.Errorf("fuel mismatch must be soft and unsatisfied, got %+v", ev)
	}
}

func TestLocationCriterion_SubstringEitherField(t *testing.T) {
	a := &model.Alert{City: "Munich"}
	if ev := (locationCriterion{}).Evaluate(a, &model.Listing{City: "Munich"}); !ev.Satisfied {
		t.Errorf("city match expected, got %+v", ev)
	}

	a = &model.Alert{Region: "Bavaria"}
	if ev := (locationCriterion{}).Evaluate(a, &model.Listing{Region: "Upper Bavaria"}); !ev.Satisfied {
		t.Errorf("region substring match expected, got %+v", ev)
	}

	a = &model.Alert{City: "Hamburg"}
	if ev := (locationCriterion{}).Evaluate(a, &model.Listing{City: "Berlin"}); ev.Satisfied {
		t.Errorf("city mismatch should not satisfy, got %+v", ev)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
