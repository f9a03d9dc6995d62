/*
calculate.go - Benefit amount evaluators

PURPOSE:
  Calculate resolves a Params variant into a Result using the tables in
  tables.go and the member's enrollment data. Pure function: no I/O, no
  clock reads (the submission date is an input), deterministic down to the
  derivation string.

DURATION RULE:
  All duration lookups use whole elapsed years between the member's
  enrollment date and the category's relevant event date. The default event
  date is the submission date; marriage and farewell accept an explicit
  event/withdrawal date.

ROUNDING RULE:
  All amounts are integers. "Halving" is floor division, never banker's
  rounding. The illness daily rate (monthly / 30) is the only fractional
  intermediate; it is carried as a decimal and rounded to the nearest
  integer once, after multiplying by absence days.

SEE ALSO:
  - types.go:  Params variants and Result
  - tables.go: the schedules these evaluators read
*/
package benefit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/benefit-engine/member"
)

// Calculate evaluates the benefit amount for the given parameters.
// submittedAt is the claim's submission date and serves as the default
// event date for duration lookups. Fails only for a nil or foreign Params
// implementation; every registered variant yields a Result, possibly with
// a zero amount.
func Calculate(params Params, m member.Member, submittedAt time.Time) (*Result, error) {
	switch p := params.(type) {
	case MarriageParams:
		return calcMarriage(p, m, submittedAt), nil
	case ChildbirthParams:
		return calcChildbirth(p), nil
	case SchoolParams:
		return calcSchool(p), nil
	case IllnessParams:
		return calcIllness(p, m, submittedAt), nil
	case DisasterParams:
		return calcDisaster(p), nil
	case CondolenceParams:
		return calcCondolence(p), nil
	case FarewellParams:
		return calcFarewell(p, m, submittedAt), nil
	case RetirementParams:
		return calcRetirement(), nil
	case nil:
		return nil, &UnknownCategoryError{Code: ""}
	default:
		return nil, &UnknownCategoryError{Code: string(params.BenefitCategory())}
	}
}

// =============================================================================
// MARRIAGE
// =============================================================================

func calcMarriage(p MarriageParams, m member.Member, submittedAt time.Time) *Result {
	eventDate := p.EventDate
	if eventDate.IsZero() {
		eventDate = submittedAt
	}
	years := m.YearsOfMembership(eventDate)

	var (
		amount int64
		table  string
	)
	if p.ForChild {
		table = "child"
		if p.Remarriage {
			amount = childMarriageTable.Remarriage
		} else {
			amount = childMarriageTable.Normal
		}
	} else {
		band := durationBandOf(years)
		cell := marriageTable[band]
		table = band.String()
		if p.Remarriage {
			amount = cell.Remarriage
		} else {
			amount = cell.Normal
		}
	}

	label := CategoryMarriage.Name()
	if p.ForChild {
		label = "Marriage Benefit (Member's Child)"
	}

	return &Result{
		Category: CategoryMarriage,
		Label:    label,
		Amount:   amount,
		Attributes: map[string]string{
			"membership_years": strconv.Itoa(years),
			"duration_band":    table,
			"remarriage":       strconv.FormatBool(p.Remarriage),
			"for_child":        strconv.FormatBool(p.ForChild),
		},
		Derivation: fmt.Sprintf("marriage table[%s, remarriage=%t, child=%t] = %d",
			table, p.Remarriage, p.ForChild, amount),
	}
}

// =============================================================================
// CHILDBIRTH
// =============================================================================

func calcChildbirth(p ChildbirthParams) *Result {
	count := p.ChildCount
	if count < 0 {
		count = 0
	}
	amount := childbirthBaseUnit * int64(count)

	label := CategoryChildbirth.Name()
	if p.Stillbirth {
		// Label only; the formula is unchanged.
		label = "Childbirth Benefit (Stillbirth)"
	}

	return &Result{
		Category: CategoryChildbirth,
		Label:    label,
		Amount:   amount,
		Attributes: map[string]string{
			"child_count": strconv.Itoa(count),
			"stillbirth":  strconv.FormatBool(p.Stillbirth),
		},
		Derivation: fmt.Sprintf("%d x %d children = %d", childbirthBaseUnit, count, amount),
	}
}

// =============================================================================
// SCHOOL ENROLLMENT
// =============================================================================

func calcSchool(p SchoolParams) *Result {
	label := CategorySchool.Name()
	if p.SchoolType != "" {
		label = fmt.Sprintf("School Enrollment Benefit (%s)", p.SchoolType)
	}
	return &Result{
		Category: CategorySchool,
		Label:    label,
		Amount:   schoolEnrollmentAmount,
		Attributes: map[string]string{
			"school_type": string(p.SchoolType),
		},
		Derivation: fmt.Sprintf("flat %d regardless of school type", schoolEnrollmentAmount),
	}
}

// =============================================================================
// ILLNESS / INJURY
// =============================================================================

func calcIllness(p IllnessParams, m member.Member, submittedAt time.Time) *Result {
	salary := p.StandardMonthlyRemuneration
	if salary == 0 {
		salary = m.MonthlySalary
	}
	years := m.YearsOfMembership(submittedAt)
	maxMonths := illnessMaxMonths(years)

	monthly, band := illnessMonthlyBenefit(salary)

	days := p.AbsenceDays
	if days < 0 {
		days = 0
	}

	// daily = monthly / 30, then x days, rounded to the nearest integer.
	amount := decimal.NewFromInt(monthly).
		Div(decimal.NewFromInt(30)).
		Mul(decimal.NewFromInt(int64(days))).
		Round(0).
		IntPart()

	capped := false
	if amount > illnessBenefitCap {
		amount = illnessBenefitCap
		capped = true
	}

	return &Result{
		Category: CategoryIllness,
		Label:    CategoryIllness.Name(),
		Amount:   amount,
		Attributes: map[string]string{
			"membership_years":   strconv.Itoa(years),
			"salary":             strconv.FormatInt(salary, 10),
			"salary_band":        band,
			"monthly_benefit":    strconv.FormatInt(monthly, 10),
			"absence_days":       strconv.Itoa(days),
			"max_benefit_months": strconv.Itoa(maxMonths),
			"capped":             strconv.FormatBool(capped),
		},
		Derivation: fmt.Sprintf("band[%s] monthly %d / 30 x %d days = %d (cap %d, max period %d months)",
			band, monthly, days, amount, illnessBenefitCap, maxMonths),
	}
}

// =============================================================================
// DISASTER
// =============================================================================

func calcDisaster(p DisasterParams) *Result {
	cell, ok := disasterTable[p.Severity]
	var base int64
	if ok {
		if p.OwnedHome {
			base = cell.Owned
		} else {
			base = cell.Rented
		}
	}

	amount := base
	if !p.HeadOfHousehold {
		amount = base / 2 // floor
	}

	return &Result{
		Category: CategoryDisaster,
		Label:    CategoryDisaster.Name(),
		Amount:   amount,
		Attributes: map[string]string{
			"severity":          string(p.Severity),
			"owned_home":        strconv.FormatBool(p.OwnedHome),
			"head_of_household": strconv.FormatBool(p.HeadOfHousehold),
		},
		Derivation: fmt.Sprintf("disaster table[%s, owned=%t] = %d, head_of_household=%t -> %d",
			p.Severity, p.OwnedHome, base, p.HeadOfHousehold, amount),
	}
}

// =============================================================================
// CONDOLENCE
// =============================================================================

func calcCondolence(p CondolenceParams) *Result {
	base := condolenceTable[p.Relationship]

	amount := base
	halved := false
	if !p.ChiefMourner && condolenceHalvedRelations[p.Relationship] {
		amount = base / 2 // floor
		halved = true
	}

	return &Result{
		Category: CategoryCondolence,
		Label:    CategoryCondolence.Name(),
		Amount:   amount,
		Attributes: map[string]string{
			"relationship":  string(p.Relationship),
			"chief_mourner": strconv.FormatBool(p.ChiefMourner),
			"halved":        strconv.FormatBool(halved),
		},
		Derivation: fmt.Sprintf("condolence table[%s] = %d, chief_mourner=%t -> %d",
			p.Relationship, base, p.ChiefMourner, amount),
	}
}

// =============================================================================
// FAREWELL (WITHDRAWAL)
// =============================================================================

func calcFarewell(p FarewellParams, m member.Member, submittedAt time.Time) *Result {
	withdrawalDate := p.WithdrawalDate
	if withdrawalDate.IsZero() {
		withdrawalDate = submittedAt
	}
	years := m.YearsOfMembership(withdrawalDate)

	var amount int64
	switch {
	case years < 3:
		amount = 0
	case years < 10:
		amount = farewellLowTier
	default:
		amount = farewellHighTier
	}

	return &Result{
		Category: CategoryFarewell,
		Label:    CategoryFarewell.Name(),
		Amount:   amount,
		Attributes: map[string]string{
			"membership_years": strconv.Itoa(years),
		},
		Derivation: fmt.Sprintf("farewell at %d years = %d", years, amount),
	}
}

// =============================================================================
// RETIREMENT GIFT
// =============================================================================

func calcRetirement() *Result {
	return &Result{
		Category:   CategoryRetirement,
		Label:      CategoryRetirement.Name(),
		Amount:     retirementGiftAmount,
		Attributes: map[string]string{},
		Derivation: fmt.Sprintf("fixed retirement gift = %d", retirementGiftAmount),
	}
}
