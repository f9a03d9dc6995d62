package benefit_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/member"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// submission date used throughout; enrollment dates are derived from it.
var submittedAt = time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)

func memberEnrolledYearsAgo(years int) member.Member {
	return member.Member{
		ID:            "m-001",
		Name:          "Tanaka",
		CompanyID:     "c-001",
		EnrolledAt:    submittedAt.AddDate(-years, 0, 0),
		FeeTier:       member.TierB,
		MonthlySalary: 200000,
	}
}

func calc(t *testing.T, p benefit.Params, m member.Member) *benefit.Result {
	t.Helper()
	res, err := benefit.Calculate(p, m, submittedAt)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// =============================================================================
// MARRIAGE
// =============================================================================

func TestMarriage_DurationBands(t *testing.T) {
	tests := []struct {
		name       string
		years      int
		remarriage bool
		want       int64
	}{
		{"under 3 years", 2, false, 5000},
		{"under 3 years remarriage", 2, true, 3000},
		{"exactly 3 years", 3, false, 10000},
		{"3 to 5 years remarriage", 4, true, 5000},
		{"exactly 5 years", 5, false, 20000},
		{"long tenure remarriage", 12, true, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := memberEnrolledYearsAgo(tt.years)
			res := calc(t, benefit.MarriageParams{Remarriage: tt.remarriage}, m)
			assert.Equal(t, tt.want, res.Amount)
			assert.Equal(t, benefit.CategoryMarriage, res.Category)
		})
	}
}

func TestMarriage_ForChild_IgnoresDuration(t *testing.T) {
	// The child table has no duration dimension: a 20-year member and a
	// 1-year member get the same amount.
	for _, years := range []int{1, 20} {
		m := memberEnrolledYearsAgo(years)

		res := calc(t, benefit.MarriageParams{ForChild: true}, m)
		assert.Equal(t, int64(3000), res.Amount)

		res = calc(t, benefit.MarriageParams{ForChild: true, Remarriage: true}, m)
		assert.Equal(t, int64(0), res.Amount, "child remarriage pays nothing")
	}
}

func TestMarriage_ExplicitEventDate(t *testing.T) {
	// Enrolled 4 years before submission, but the wedding was 2 years ago:
	// the event date drives the band, not the submission date.
	m := memberEnrolledYearsAgo(4)
	eventDate := submittedAt.AddDate(-2, 0, 0)

	res := calc(t, benefit.MarriageParams{EventDate: eventDate}, m)
	assert.Equal(t, int64(5000), res.Amount)
	assert.Equal(t, "2", res.Attributes["membership_years"])
}

// =============================================================================
// CHILDBIRTH
// =============================================================================

func TestChildbirth_PerChild(t *testing.T) {
	m := memberEnrolledYearsAgo(1)

	res := calc(t, benefit.ChildbirthParams{ChildCount: 1}, m)
	assert.Equal(t, int64(10000), res.Amount)

	res = calc(t, benefit.ChildbirthParams{ChildCount: 2}, m)
	assert.Equal(t, int64(20000), res.Amount, "twins double the amount")
}

func TestChildbirth_StillbirthChangesLabelOnly(t *testing.T) {
	m := memberEnrolledYearsAgo(1)

	normal := calc(t, benefit.ChildbirthParams{ChildCount: 1}, m)
	still := calc(t, benefit.ChildbirthParams{ChildCount: 1, Stillbirth: true}, m)

	assert.Equal(t, normal.Amount, still.Amount)
	assert.NotEqual(t, normal.Label, still.Label)
	assert.Contains(t, still.Label, "Stillbirth")
}

// =============================================================================
// SCHOOL ENROLLMENT
// =============================================================================

func TestSchool_FlatRegardlessOfType(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	for _, st := range []benefit.SchoolType{
		benefit.SchoolElementary, benefit.SchoolJuniorHigh,
		benefit.SchoolHigh, benefit.SchoolUniversity,
	} {
		res := calc(t, benefit.SchoolParams{SchoolType: st}, m)
		assert.Equal(t, int64(5000), res.Amount)
		assert.Contains(t, res.Label, string(st))
	}
}

// =============================================================================
// ILLNESS / INJURY
// =============================================================================

func TestIllness_BandLookupAndProration(t *testing.T) {
	// GIVEN: salary 200000 (band 195000-214999 -> monthly 65000), 6 years
	// of membership (max benefit period 9 months)
	m := memberEnrolledYearsAgo(6)

	// WHEN: 30 absence days
	res := calc(t, benefit.IllnessParams{StandardMonthlyRemuneration: 200000, AbsenceDays: 30}, m)

	// THEN: a full month's benefit
	assert.Equal(t, int64(65000), res.Amount)
	assert.Equal(t, "65000", res.Attributes["monthly_benefit"])
	assert.Equal(t, "9", res.Attributes["max_benefit_months"])
}

func TestIllness_RoundingOfDailyRate(t *testing.T) {
	// 65000 / 30 = 2166.66..., x 7 days = 15166.66... -> 15167
	m := memberEnrolledYearsAgo(6)
	res := calc(t, benefit.IllnessParams{StandardMonthlyRemuneration: 200000, AbsenceDays: 7}, m)
	assert.Equal(t, int64(15167), res.Amount)
}

func TestIllness_Cap(t *testing.T) {
	// 65000 / 30 x 100 days = 216666.67, above the 200000 cap.
	m := memberEnrolledYearsAgo(6)
	res := calc(t, benefit.IllnessParams{StandardMonthlyRemuneration: 200000, AbsenceDays: 100}, m)
	assert.Equal(t, int64(200000), res.Amount)
	assert.Equal(t, "true", res.Attributes["capped"])
}

func TestIllness_SalaryGapRatesZero(t *testing.T) {
	// 125000 falls between bands: unrated, zero benefit, no error.
	m := memberEnrolledYearsAgo(6)
	res := calc(t, benefit.IllnessParams{StandardMonthlyRemuneration: 125000, AbsenceDays: 30}, m)
	assert.Equal(t, int64(0), res.Amount)
	assert.Equal(t, "unrated", res.Attributes["salary_band"])
}

func TestIllness_SalaryFallsBackToMemberRecord(t *testing.T) {
	// No remuneration in the params: the member's salary drives the band.
	m := memberEnrolledYearsAgo(6) // salary 200000
	res := calc(t, benefit.IllnessParams{AbsenceDays: 30}, m)
	assert.Equal(t, int64(65000), res.Amount)

	// Both absent: zero amount, still no error.
	m.MonthlySalary = 0
	res = calc(t, benefit.IllnessParams{AbsenceDays: 30}, m)
	assert.Equal(t, int64(0), res.Amount)
}

func TestIllness_MaxMonthsByTenure(t *testing.T) {
	tests := []struct {
		years int
		want  string
	}{
		{0, "3"},
		{1, "6"},
		{5, "9"},
		{10, "12"},
	}
	for _, tt := range tests {
		m := memberEnrolledYearsAgo(tt.years)
		res := calc(t, benefit.IllnessParams{StandardMonthlyRemuneration: 200000, AbsenceDays: 1}, m)
		assert.Equal(t, tt.want, res.Attributes["max_benefit_months"], "years=%d", tt.years)
	}
}

// =============================================================================
// DISASTER
// =============================================================================

func TestDisaster_TableAndHouseholdHalving(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	tests := []struct {
		name     string
		severity benefit.DamageSeverity
		owned    bool
		head     bool
		want     int64
	}{
		{"total owned head", benefit.DamageTotal, true, true, 50000},
		{"total owned non-head", benefit.DamageTotal, true, false, 25000},
		{"total rented head", benefit.DamageTotal, false, true, 30000},
		{"half rented head", benefit.DamageHalf, false, true, 20000},
		{"partial owned head", benefit.DamagePartial, true, true, 10000},
		{"partial owned non-head", benefit.DamagePartial, true, false, 5000},
		{"partial rented non-head", benefit.DamagePartial, false, false, 2500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := calc(t, benefit.DisasterParams{
				Severity:        tt.severity,
				OwnedHome:       tt.owned,
				HeadOfHousehold: tt.head,
			}, m)
			assert.Equal(t, tt.want, res.Amount)
		})
	}
}

func TestDisaster_UnknownSeverityRatesZero(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	res := calc(t, benefit.DisasterParams{Severity: "cosmetic", HeadOfHousehold: true}, m)
	assert.Equal(t, int64(0), res.Amount)
}

// =============================================================================
// CONDOLENCE
// =============================================================================

func TestCondolence_RelationshipTable(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	tests := []struct {
		name     string
		relation benefit.Relationship
		chief    bool
		want     int64
	}{
		{"member death", benefit.RelationSelf, false, 50000},
		{"spouse non-chief keeps full", benefit.RelationSpouse, false, 40000},
		{"spouse chief", benefit.RelationSpouse, true, 40000},
		{"parent chief", benefit.RelationParent, true, 20000},
		{"parent non-chief halved", benefit.RelationParent, false, 10000},
		{"child chief", benefit.RelationChild, true, 30000},
		{"child non-chief halved", benefit.RelationChild, false, 15000},
		{"grandparent non-chief halved", benefit.RelationGrandparent, false, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := calc(t, benefit.CondolenceParams{
				Relationship: tt.relation,
				ChiefMourner: tt.chief,
			}, m)
			assert.Equal(t, tt.want, res.Amount)
		})
	}
}

// =============================================================================
// FAREWELL
// =============================================================================

func TestFarewell_TenureTiers(t *testing.T) {
	tests := []struct {
		years int
		want  int64
	}{
		{1, 0},
		{2, 0},
		{3, 5000}, // anniversary day is inclusive
		{9, 5000},
		{10, 10000},
	}
	for _, tt := range tests {
		m := memberEnrolledYearsAgo(tt.years)
		res := calc(t, benefit.FarewellParams{}, m)
		assert.Equal(t, tt.want, res.Amount, "years=%d", tt.years)
	}
}

func TestFarewell_ExplicitWithdrawalDate(t *testing.T) {
	// Withdrawal happened before the submission date: band uses withdrawal.
	m := memberEnrolledYearsAgo(3)
	res, err := benefit.Calculate(benefit.FarewellParams{
		WithdrawalDate: submittedAt.AddDate(-1, 0, 0), // only 2 years in
	}, m, submittedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Amount)
}

// =============================================================================
// RETIREMENT
// =============================================================================

func TestRetirement_FixedGift(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	res := calc(t, benefit.RetirementParams{}, m)
	assert.Equal(t, int64(30000), res.Amount)
}

// =============================================================================
// CROSS-CUTTING
// =============================================================================

func TestCalculate_Deterministic(t *testing.T) {
	// Same inputs, same Result, byte for byte.
	m := memberEnrolledYearsAgo(6)
	p := benefit.IllnessParams{StandardMonthlyRemuneration: 200000, AbsenceDays: 17}

	first := calc(t, p, m)
	second := calc(t, p, m)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Derivation, second.Derivation)
}

func TestCalculate_NilParams(t *testing.T) {
	m := memberEnrolledYearsAgo(1)
	_, err := benefit.Calculate(nil, m, submittedAt)

	var unknownErr *benefit.UnknownCategoryError
	require.ErrorAs(t, err, &unknownErr)
}

func TestDecodeParams_RoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"severity":"half","owned_home":true,"head_of_household":true}`)
	p, err := benefit.DecodeParams("05", raw)
	require.NoError(t, err)

	dp, ok := p.(benefit.DisasterParams)
	require.True(t, ok)
	assert.Equal(t, benefit.DamageHalf, dp.Severity)
	assert.True(t, dp.OwnedHome)
}

func TestDecodeParams_UnknownCategory(t *testing.T) {
	_, err := benefit.DecodeParams("99", json.RawMessage(`{}`))

	var unknownErr *benefit.UnknownCategoryError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "99", unknownErr.Code)
}
