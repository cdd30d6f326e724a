package models

import (
	"time"

	"github.com/google/uuid"
)

// Countries of chargeability the bulletin publishes dedicated columns for.
var SupportedCountries = []string{"Rest of World", "CHINA", "INDIA", "MEXICO", "PHILIPPINES"}

// Employment-based preference categories covered by the calculator.
var SupportedPreferences = []string{"EB-1", "EB-2", "EB-3"}

// CaseInputs is the immutable snapshot of user-chosen values the calculator
// works from. All durations are fractional month counts; the priority date is
// entered independently of the preparation stages because real-world filing
// may lag preparation.
type CaseInputs struct {
	PrepStart time.Time `json:"prep_start"`

	LettersMonths  float64 `json:"letters_months"`
	PetitionMonths float64 `json:"petition_months"`

	Premium            bool    `json:"premium"`
	I140ApprovalMonths float64 `json:"i140_approval_months"`

	RFEExpected       bool    `json:"rfe_expected"`
	RFEResponseMonths float64 `json:"rfe_response_months"`
	RFEReviewMonths   float64 `json:"rfe_review_months"`

	I485Months float64 `json:"i485_months"`
	EADMonths  float64 `json:"ead_months"`

	Country      string    `json:"country"`
	Preference   string    `json:"preference"`
	PriorityDate time.Time `json:"priority_date"`
}

// Milestone is one labeled date in the computed case timeline.
type Milestone struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
}

// TimelineSegment is a labeled date interval derived from the milestones,
// used only for visualization.
type TimelineSegment struct {
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimelineReport is the full output artifact returned to the UI collaborator:
// the ordered milestone list, the derived chart segments, and the cutoff pair
// plus bulletin identifier for display and audit.
type TimelineReport struct {
	ID          uuid.UUID         `json:"id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Inputs      CaseInputs        `json:"inputs"`
	Cutoffs     CutoffPair        `json:"cutoffs"`
	Milestones  []Milestone       `json:"milestones"`
	Segments    []TimelineSegment `json:"segments"`

	// Backlog offsets in days, surfaced separately so the UI can explain
	// the gap between approval and eligibility.
	BacklogFilingDays int `json:"backlog_filing_days"`
	BacklogFinalDays  int `json:"backlog_final_days"`
}
