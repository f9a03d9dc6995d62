/*
tables.go - Static benefit schedules

PURPOSE:
  All flat amounts, salary-tier schedules, and membership-year thresholds
  for the eight benefit categories, in one place. The evaluators in
  calculate.go only read these tables; they carry no amounts of their own.

TABLE SHAPES:
  Marriage:       duration band x remarriage, plus a separate two-entry
                  table for a child's marriage
  Childbirth:     one base unit, multiplied by child count
  School:         one flat amount (type affects the label only)
  Illness/injury: ten non-contiguous salary bands -> monthly benefit,
                  gaps intentionally yield zero; plus a global cap and a
                  duration -> maximum-eligible-months schedule
  Disaster:       severity x home ownership (6 cells)
  Condolence:     relationship -> base amount
  Farewell:       duration band -> flat amount
  Retirement:     one fixed amount

NOTE ON GAPS:
  The illness bands are deliberately non-contiguous: salaries between two
  bands are not rated and produce a monthly benefit of zero. Do not "fix"
  the gaps by widening the bands.
*/
package benefit

import "strconv"

// =============================================================================
// MEMBERSHIP DURATION BANDS
// =============================================================================

type durationBand int

const (
	bandUnder3 durationBand = iota // < 3 years
	band3to5                       // >= 3 and < 5 years
	band5Plus                      // >= 5 years
)

func durationBandOf(years int) durationBand {
	switch {
	case years < 3:
		return bandUnder3
	case years < 5:
		return band3to5
	default:
		return band5Plus
	}
}

func (b durationBand) String() string {
	switch b {
	case bandUnder3:
		return "<3y"
	case band3to5:
		return "3-5y"
	default:
		return ">=5y"
	}
}

// =============================================================================
// MARRIAGE
// =============================================================================

type marriageCell struct {
	Normal     int64
	Remarriage int64
}

var marriageTable = map[durationBand]marriageCell{
	bandUnder3: {Normal: 5000, Remarriage: 3000},
	band3to5:   {Normal: 10000, Remarriage: 5000},
	band5Plus:  {Normal: 20000, Remarriage: 10000},
}

// A child's marriage uses its own two-entry table regardless of the
// member's duration band. Remarriage of a child pays nothing.
var childMarriageTable = marriageCell{Normal: 3000, Remarriage: 0}

// =============================================================================
// CHILDBIRTH
// =============================================================================

const childbirthBaseUnit int64 = 10000 // per child

// =============================================================================
// SCHOOL ENROLLMENT
// =============================================================================

const schoolEnrollmentAmount int64 = 5000 // flat regardless of school type

// =============================================================================
// ILLNESS / INJURY
// =============================================================================

type salaryBand struct {
	Min     int64 // inclusive
	Max     int64 // inclusive
	Monthly int64 // monthly benefit for salaries in [Min, Max]
}

// Ten bands; the ranges between consecutive bands that do not touch are
// intentional gaps rated at zero.
var illnessSalaryBands = []salaryBand{
	{Min: 80000, Max: 99999, Monthly: 30000},
	{Min: 100000, Max: 119999, Monthly: 35000},
	{Min: 130000, Max: 149999, Monthly: 45000},
	{Min: 150000, Max: 169999, Monthly: 50000},
	{Min: 170000, Max: 189999, Monthly: 55000},
	{Min: 195000, Max: 214999, Monthly: 65000},
	{Min: 215000, Max: 239999, Monthly: 70000},
	{Min: 240000, Max: 269999, Monthly: 80000},
	{Min: 280000, Max: 309999, Monthly: 90000},
	{Min: 310000, Max: 349999, Monthly: 100000},
}

// illnessBenefitCap is the global maximum per claim, applied after the
// daily-rate multiplication.
const illnessBenefitCap int64 = 200000

// illnessMonthlyBenefit returns the monthly benefit for a salary, or zero
// when the salary falls outside every band (including the gaps).
func illnessMonthlyBenefit(salary int64) (int64, string) {
	for _, b := range illnessSalaryBands {
		if salary >= b.Min && salary <= b.Max {
			return b.Monthly, bandLabel(b)
		}
	}
	return 0, "unrated"
}

func bandLabel(b salaryBand) string {
	return strconv.FormatInt(b.Min, 10) + "-" + strconv.FormatInt(b.Max, 10)
}

// illnessMaxMonths is the maximum eligible benefit period by membership
// duration. Reported on the result; not enforced arithmetically in the
// amount.
func illnessMaxMonths(years int) int {
	switch {
	case years < 1:
		return 3
	case years < 5:
		return 6
	case years < 10:
		return 9
	default:
		return 12
	}
}

// =============================================================================
// DISASTER
// =============================================================================

type disasterCell struct {
	Owned  int64
	Rented int64
}

var disasterTable = map[DamageSeverity]disasterCell{
	DamageTotal:   {Owned: 50000, Rented: 30000},
	DamageHalf:    {Owned: 30000, Rented: 20000},
	DamagePartial: {Owned: 10000, Rented: 5000},
}

// =============================================================================
// CONDOLENCE
// =============================================================================

var condolenceTable = map[Relationship]int64{
	RelationSelf:        50000,
	RelationSpouse:      40000,
	RelationParent:      20000,
	RelationChild:       30000,
	RelationGrandparent: 10000,
}

// condolenceHalvedRelations are halved (floor) when the claimant is not the
// chief mourner. Self and spouse are exempt regardless of the flag.
var condolenceHalvedRelations = map[Relationship]bool{
	RelationParent:      true,
	RelationChild:       true,
	RelationGrandparent: true,
}

// =============================================================================
// FAREWELL (WITHDRAWAL)
// =============================================================================

const (
	farewellLowTier  int64 = 5000  // >= 3y and < 10y, boundary inclusive at 3
	farewellHighTier int64 = 10000 // >= 10y
)

// =============================================================================
// RETIREMENT GIFT
// =============================================================================

const retirementGiftAmount int64 = 30000
