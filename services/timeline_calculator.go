package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/config"
	"github.com/visatrack/timeline-backend/models"
	"github.com/visatrack/timeline-backend/shared"
)

// DaysPerMonth is the fixed month approximation used throughout the
// calculator. Calendar-month arithmetic is deliberately not performed.
const DaysPerMonth = 30

// Milestone labels, in their fixed output order.
const (
	MilestonePreparationStarted = "Preparation Started"
	MilestoneLettersCompleted   = "Letters Completed"
	MilestoneI140Filed          = "I-140 Filed (Priority Date)"
	MilestoneI140Approved       = "I-140 Approved"
	MilestoneI485Eligible       = "I-485 Eligible to File"
	MilestoneEADReceived        = "EAD/AP Received"
	MilestoneFinalActionCurrent = "Final Action Current"
	MilestoneGreenCardApproved  = "Green Card Approved"
)

// Visualization stage labels.
const (
	StagePreparation       = "Preparation Phase"
	StageI140Pending       = "I-140 Pending"
	StageBacklogWait       = "Backlog Wait"
	StageI485Pending       = "I-485 Pending"
	StageEADCard           = "EAD/AP card"
	StageGreenCardReceived = "Green Card Received"
)

// durationRange declares the accepted bounds for one duration input. Values
// outside the range are rejected at the boundary, never clamped.
type durationRange struct {
	field string
	min   float64
	max   float64
}

var durationRanges = []durationRange{
	{"letters_months", 0.0, 3.0},
	{"petition_months", 0.0, 2.0},
	{"i140_approval_months", 1.0, 24.0},
	{"rfe_response_months", 0.0, 6.0},
	{"rfe_review_months", 0.0, 6.0},
	{"i485_months", 6.0, 22.0},
	{"ead_months", 1.0, 12.0},
}

// TimelineCalculatorConfiguration holds the constants the calculator needs
// beyond the per-case inputs.
type TimelineCalculatorConfiguration struct {
	PremiumProcessingDays     int     // Fixed premium-processing turnaround
	DefaultI140ApprovalMonths float64 // Applied when the caller omits the regular estimate
	GreenCardBufferDays       int     // Card production/mailing buffer after approval
}

// NewDefaultTimelineCalculatorConfiguration returns the stock constants.
func NewDefaultTimelineCalculatorConfiguration() *TimelineCalculatorConfiguration {
	return &TimelineCalculatorConfiguration{
		PremiumProcessingDays:     config.PremiumProcessingDays15,
		DefaultI140ApprovalMonths: config.DefaultI140ApprovalMonths,
		GreenCardBufferDays:       15,
	}
}

// TimelineCalculator computes the ordered milestone sequence for a case.
// Every date is a closed-form function of the inputs and previously computed
// milestones; there are no loops or fixed-point iterations.
type TimelineCalculator struct {
	configuration *TimelineCalculatorConfiguration
}

// NewTimelineCalculator creates a new calculator with the specified configuration
func NewTimelineCalculator(configuration *TimelineCalculatorConfiguration) *TimelineCalculator {
	if configuration == nil {
		configuration = NewDefaultTimelineCalculatorConfiguration()
	} else {
		if configuration.PremiumProcessingDays <= 0 {
			configuration.PremiumProcessingDays = config.PremiumProcessingDays15
		}
		if configuration.DefaultI140ApprovalMonths <= 0 {
			configuration.DefaultI140ApprovalMonths = config.DefaultI140ApprovalMonths
		}
		if configuration.GreenCardBufferDays < 0 {
			configuration.GreenCardBufferDays = 15
		}
	}

	return &TimelineCalculator{configuration: configuration}
}

// MonthsToDays converts a fractional month count to whole days: 30 days per
// month, truncated toward zero.
func MonthsToDays(months float64) int {
	return int(months * DaysPerMonth)
}

// ApplyDefaults fills the optional duration inputs: the regular I-140
// approval estimate when omitted, and the stock RFE cycle durations when an
// RFE is expected but no durations were given.
func (calculator *TimelineCalculator) ApplyDefaults(inputs models.CaseInputs) models.CaseInputs {
	if inputs.I140ApprovalMonths == 0 {
		inputs.I140ApprovalMonths = calculator.configuration.DefaultI140ApprovalMonths
	}
	if inputs.RFEExpected {
		if inputs.RFEResponseMonths == 0 {
			inputs.RFEResponseMonths = 2.0
		}
		if inputs.RFEReviewMonths == 0 {
			inputs.RFEReviewMonths = 3.0
		}
	} else {
		inputs.RFEResponseMonths = 0
		inputs.RFEReviewMonths = 0
	}
	return inputs
}

// ValidateInputs rejects inputs outside their declared ranges and required
// dates that were not supplied.
func (calculator *TimelineCalculator) ValidateInputs(inputs models.CaseInputs) error {
	if inputs.PrepStart.IsZero() {
		return calculator.rangeError("prep_start", "preparation start date is required", nil)
	}
	if inputs.PriorityDate.IsZero() {
		return calculator.rangeError("priority_date", "priority date is required", nil)
	}

	values := map[string]float64{
		"letters_months":       inputs.LettersMonths,
		"petition_months":      inputs.PetitionMonths,
		"i140_approval_months": inputs.I140ApprovalMonths,
		"rfe_response_months":  inputs.RFEResponseMonths,
		"rfe_review_months":    inputs.RFEReviewMonths,
		"i485_months":          inputs.I485Months,
		"ead_months":           inputs.EADMonths,
	}

	for _, bounds := range durationRanges {
		value := values[bounds.field]
		if value < bounds.min || value > bounds.max {
			return calculator.rangeError(
				bounds.field,
				fmt.Sprintf("%s must be between %.1f and %.1f months, got %.2f",
					bounds.field, bounds.min, bounds.max, value),
				map[string]interface{}{
					"field": bounds.field,
					"min":   bounds.min,
					"max":   bounds.max,
					"value": value,
				})
		}
	}

	return nil
}

func (calculator *TimelineCalculator) rangeError(field, message string, details map[string]interface{}) *shared.ServiceError {
	err := shared.NewServiceError(
		shared.ErrorCategoryValidation,
		shared.CodeInputOutOfRange,
		message,
		"TimelineCalculator",
		"ValidateInputs",
		false,
		nil,
	)
	if details == nil {
		details = map[string]interface{}{"field": field}
	}
	return err.WithDetails(details)
}

// Compute produces the full timeline report for validated inputs and a
// resolved cutoff pair. A priority date later than both cutoffs is the
// normal backlogged case, not an error; an Unavailable cutoff fails
// explicitly because no backlog can be computed from it.
func (calculator *TimelineCalculator) Compute(inputs models.CaseInputs, cutoffs models.CutoffPair) (*models.TimelineReport, error) {
	lettersDays := MonthsToDays(inputs.LettersMonths)
	petitionDays := MonthsToDays(inputs.PetitionMonths)
	i140ApprovalDays := MonthsToDays(inputs.I140ApprovalMonths)
	rfeResponseDays := MonthsToDays(inputs.RFEResponseMonths)
	rfeReviewDays := MonthsToDays(inputs.RFEReviewMonths)
	i485Days := MonthsToDays(inputs.I485Months)
	eadDays := MonthsToDays(inputs.EADMonths)

	// Preparation phase.
	lettersDone := inputs.PrepStart.AddDate(0, 0, lettersDays)
	petitionReady := lettersDone.AddDate(0, 0, petitionDays)

	// The priority date is the user's own filing date, tracked separately
	// from the preparation stages.
	priorityDate := inputs.PriorityDate

	var i140Approved time.Time
	if inputs.Premium {
		i140Approved = priorityDate.AddDate(0, 0, calculator.configuration.PremiumProcessingDays)
	} else {
		i140Approved = priorityDate.AddDate(0, 0, i140ApprovalDays)
	}

	// An expected RFE replaces the base approval estimate: the RFE is
	// assumed to arrive halfway through regular adjudication, then the
	// response and review cycles run to completion.
	if inputs.RFEExpected {
		rfeIssued := priorityDate.AddDate(0, 0, i140ApprovalDays/2)
		rfeResponse := rfeIssued.AddDate(0, 0, rfeResponseDays)
		i140Approved = rfeResponse.AddDate(0, 0, rfeReviewDays)
	}

	backlogFilingDays, err := cutoffs.FilingCutoff.WaitDays(priorityDate)
	if err != nil {
		return nil, calculator.cutoffUnavailableError("filing_cutoff", err)
	}
	backlogFinalDays, err := cutoffs.FinalActionCutoff.WaitDays(priorityDate)
	if err != nil {
		return nil, calculator.cutoffUnavailableError("final_action_cutoff", err)
	}

	i485Eligible := i140Approved.AddDate(0, 0, backlogFilingDays)
	finalAction := i485Eligible.AddDate(0, 0, backlogFinalDays)
	eadReceived := i485Eligible.AddDate(0, 0, eadDays)
	gcReceived := finalAction.AddDate(0, 0, i485Days)

	milestones := []models.Milestone{
		{Label: MilestonePreparationStarted, Date: inputs.PrepStart},
		{Label: MilestoneLettersCompleted, Date: lettersDone},
		{Label: MilestoneI140Filed, Date: priorityDate},
		{Label: MilestoneI140Approved, Date: i140Approved},
		{Label: MilestoneI485Eligible, Date: i485Eligible},
		{Label: MilestoneEADReceived, Date: eadReceived},
		{Label: MilestoneFinalActionCurrent, Date: finalAction},
		{Label: MilestoneGreenCardApproved, Date: gcReceived},
	}

	segments := []models.TimelineSegment{
		{Stage: StagePreparation, Start: inputs.PrepStart, End: petitionReady},
		{Stage: StageI140Pending, Start: priorityDate, End: i140Approved},
		{Stage: StageBacklogWait, Start: i140Approved, End: i485Eligible},
		{Stage: StageI485Pending, Start: i485Eligible, End: gcReceived},
		{Stage: StageEADCard, Start: i485Eligible, End: eadReceived},
		{Stage: StageGreenCardReceived, Start: gcReceived, End: gcReceived.AddDate(0, 0, calculator.configuration.GreenCardBufferDays)},
	}

	logrus.WithFields(logrus.Fields{
		"component":           "TimelineCalculator",
		"country":             inputs.Country,
		"preference":          inputs.Preference,
		"premium":             inputs.Premium,
		"rfe_expected":        inputs.RFEExpected,
		"backlog_filing_days": backlogFilingDays,
		"backlog_final_days":  backlogFinalDays,
	}).Info("Computed case timeline")

	return &models.TimelineReport{
		ID:                uuid.New(),
		GeneratedAt:       time.Now().UTC(),
		Inputs:            inputs,
		Cutoffs:           cutoffs,
		Milestones:        milestones,
		Segments:          segments,
		BacklogFilingDays: backlogFilingDays,
		BacklogFinalDays:  backlogFinalDays,
	}, nil
}

func (calculator *TimelineCalculator) cutoffUnavailableError(which string, cause error) *shared.ServiceError {
	return shared.NewServiceError(
		shared.ErrorCategoryProcessing,
		shared.CodeCutoffUnavailable,
		fmt.Sprintf("cannot compute backlog: %s is unavailable for this category", which),
		"TimelineCalculator",
		"Compute",
		false,
		cause,
	).WithDetails(map[string]interface{}{"cutoff": which})
}
