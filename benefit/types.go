/*
Package benefit implements the benefit-amount calculation engine for the
mutual-aid program.

PURPOSE:
  Eight benefit categories, each with its own eligibility and tiering rule,
  evaluated as a pure function of (category parameters, member, submission
  date). The engine performs no I/O and is fully deterministic: the same
  inputs always produce the same Result, including its derivation string,
  which is stored on the claim for audit.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: closed set of eight benefit codes ("01".."08")
  - Params:   one variant per category, carrying that category's inputs
  - Result:   amount + explanatory attributes + derivation string

DESIGN PRINCIPLES:
  1. Closed variants: Params is a sealed interface; Calculate dispatches by
     type switch so a ninth category is a compile-visible change, not a
     silent fallthrough.
  2. Integer money: amounts are int64 units of a single currency. Halving
     is always floor division. The only fractional intermediate (the
     illness daily rate) uses decimal.Decimal and rounds once at the end.
  3. Optional inputs are explicit per variant, not a catch-all bag.

SEE ALSO:
  - tables.go:    the static lookup tables behind each rule
  - calculate.go: the evaluators
*/
package benefit

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// CATEGORY - Closed set of benefit codes
// =============================================================================

type Category string

const (
	CategoryMarriage   Category = "01"
	CategoryChildbirth Category = "02"
	CategorySchool     Category = "03"
	CategoryIllness    Category = "04"
	CategoryDisaster   Category = "05"
	CategoryCondolence Category = "06"
	CategoryFarewell   Category = "07"
	CategoryRetirement Category = "08"
)

// Categories lists all registered benefit categories in code order.
func Categories() []Category {
	return []Category{
		CategoryMarriage, CategoryChildbirth, CategorySchool, CategoryIllness,
		CategoryDisaster, CategoryCondolence, CategoryFarewell, CategoryRetirement,
	}
}

// Name returns the category's display name.
func (c Category) Name() string {
	switch c {
	case CategoryMarriage:
		return "Marriage Benefit"
	case CategoryChildbirth:
		return "Childbirth Benefit"
	case CategorySchool:
		return "School Enrollment Benefit"
	case CategoryIllness:
		return "Illness/Injury Benefit"
	case CategoryDisaster:
		return "Disaster Benefit"
	case CategoryCondolence:
		return "Condolence Benefit"
	case CategoryFarewell:
		return "Farewell Benefit"
	case CategoryRetirement:
		return "Retirement Gift"
	default:
		return string(c)
	}
}

// UnknownCategoryError is returned when a category code is not one of the
// eight registered variants.
type UnknownCategoryError struct {
	Code string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown benefit category: %q", e.Code)
}

// =============================================================================
// PARAMS - One variant per category
// =============================================================================

// Params is the sealed parameter variant for a benefit category. Concrete
// types live in this package only; Calculate dispatches over them
// exhaustively.
type Params interface {
	BenefitCategory() Category
}

// MarriageParams covers the member's own marriage or a child's marriage.
type MarriageParams struct {
	EventDate  time.Time `json:"event_date"` // zero value = submission date
	Remarriage bool      `json:"remarriage"`
	ForChild   bool      `json:"for_child"` // marriage of the member's child
}

func (MarriageParams) BenefitCategory() Category { return CategoryMarriage }

type ChildbirthParams struct {
	ChildCount int  `json:"child_count"`
	Stillbirth bool `json:"stillbirth"` // changes the label only, not the formula
}

func (ChildbirthParams) BenefitCategory() Category { return CategoryChildbirth }

type SchoolType string

const (
	SchoolElementary SchoolType = "elementary"
	SchoolJuniorHigh SchoolType = "junior_high"
	SchoolHigh       SchoolType = "high"
	SchoolUniversity SchoolType = "university"
)

type SchoolParams struct {
	SchoolType SchoolType `json:"school_type"`
}

func (SchoolParams) BenefitCategory() Category { return CategorySchool }

// IllnessParams covers absence due to illness or injury.
// StandardMonthlyRemuneration of zero falls back to the member's on-file
// salary; absence of both yields a zero amount without error.
type IllnessParams struct {
	StandardMonthlyRemuneration int64 `json:"standard_monthly_remuneration"`
	AbsenceDays                 int   `json:"absence_days"`
}

func (IllnessParams) BenefitCategory() Category { return CategoryIllness }

type DamageSeverity string

const (
	DamageTotal   DamageSeverity = "total"
	DamageHalf    DamageSeverity = "half"
	DamagePartial DamageSeverity = "partial"
)

type DisasterParams struct {
	Severity        DamageSeverity `json:"severity"`
	OwnedHome       bool           `json:"owned_home"`
	HeadOfHousehold bool           `json:"head_of_household"`
}

func (DisasterParams) BenefitCategory() Category { return CategoryDisaster }

type Relationship string

const (
	RelationSelf        Relationship = "self"
	RelationSpouse      Relationship = "spouse"
	RelationParent      Relationship = "parent"
	RelationChild       Relationship = "child"
	RelationGrandparent Relationship = "grandparent_sibling"
)

type CondolenceParams struct {
	Relationship Relationship `json:"relationship"`
	ChiefMourner bool         `json:"chief_mourner"`
}

func (CondolenceParams) BenefitCategory() Category { return CategoryCondolence }

// FarewellParams covers withdrawal from the program.
type FarewellParams struct {
	WithdrawalDate time.Time `json:"withdrawal_date"` // zero value = submission date
}

func (FarewellParams) BenefitCategory() Category { return CategoryFarewell }

// RetirementParams has no inputs: the gift is a fixed amount.
type RetirementParams struct{}

func (RetirementParams) BenefitCategory() Category { return CategoryRetirement }

// DecodeParams converts a raw category code plus its JSON parameter bag into
// the typed variant. Used at the API boundary; the core only ever sees typed
// Params.
func DecodeParams(code string, raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	decode := func(v any) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("invalid parameters for category %s: %w", code, err)
		}
		return nil
	}
	switch Category(code) {
	case CategoryMarriage:
		var p MarriageParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryChildbirth:
		var p ChildbirthParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategorySchool:
		var p SchoolParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryIllness:
		var p IllnessParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryDisaster:
		var p DisasterParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryCondolence:
		var p CondolenceParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryFarewell:
		var p FarewellParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case CategoryRetirement:
		var p RetirementParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &UnknownCategoryError{Code: code}
	}
}

// =============================================================================
// RESULT - Calculation output, flattened into the claim at creation
// =============================================================================

// Result is the ephemeral output of Calculate. It is not persisted as its
// own row; the lifecycle flattens it into the claim.
type Result struct {
	Category Category
	Label    string // display label, may differ from Category.Name (e.g. stillbirth)
	Amount   int64  // always >= 0

	// Explanatory attributes, keyed per category (membership years, salary
	// band, damage classification, relationship, absence days, ...).
	Attributes map[string]string

	// Derivation is a human-readable trace of how Amount was reached.
	// Reproducible from the same inputs; stored on the claim for audit.
	Derivation string
}
