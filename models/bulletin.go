package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CutoffKind identifies how a visa bulletin cell should be interpreted.
type CutoffKind string

const (
	// CutoffCurrent means the category is current ("C" cell): no backlog wait.
	CutoffCurrent CutoffKind = "current"
	// CutoffUnavailable means the category is not accepting filings ("U" cell).
	CutoffUnavailable CutoffKind = "unavailable"
	// CutoffOnDate means the cell carried a concrete cutoff date.
	CutoffOnDate CutoffKind = "date"
)

// CutoffValue is the parsed value of one bulletin table cell. It is a tagged
// value rather than a materialized date so that "current" stays "zero wait"
// no matter when the backlog arithmetic runs.
type CutoffValue struct {
	Kind CutoffKind `json:"kind"`
	Date *time.Time `json:"date,omitempty"`
}

// Current returns the sentinel for a "C" cell.
func Current() CutoffValue {
	return CutoffValue{Kind: CutoffCurrent}
}

// Unavailable returns the sentinel for a "U" cell.
func Unavailable() CutoffValue {
	return CutoffValue{Kind: CutoffUnavailable}
}

// OnDate returns a concrete cutoff date value.
func OnDate(date time.Time) CutoffValue {
	d := date
	return CutoffValue{Kind: CutoffOnDate, Date: &d}
}

// IsUnavailable reports whether the category is not accepting filings.
func (v CutoffValue) IsUnavailable() bool {
	return v.Kind == CutoffUnavailable
}

// ResolvedDate materializes the cutoff as a calendar date for display.
// "Current" resolves to today at the supplied clock; "Unavailable" has no
// date and returns nil.
func (v CutoffValue) ResolvedDate(now time.Time) *time.Time {
	switch v.Kind {
	case CutoffCurrent:
		today := now
		return &today
	case CutoffOnDate:
		return v.Date
	default:
		return nil
	}
}

// WaitDays returns the zero-floored backlog offset in days for the given
// priority date. An unavailable cutoff is an explicit error, never a silent
// zero-day wait.
func (v CutoffValue) WaitDays(priorityDate time.Time) (int, error) {
	switch v.Kind {
	case CutoffCurrent:
		return 0, nil
	case CutoffOnDate:
		days := int(priorityDate.Sub(*v.Date).Hours() / 24)
		if days < 0 {
			days = 0
		}
		return days, nil
	case CutoffUnavailable:
		return 0, fmt.Errorf("cutoff is unavailable: category is not accepting filings")
	default:
		return 0, fmt.Errorf("cutoff value has unknown kind %q", v.Kind)
	}
}

// String renders the value the way the bulletin prints it.
func (v CutoffValue) String() string {
	switch v.Kind {
	case CutoffCurrent:
		return "C"
	case CutoffUnavailable:
		return "U"
	case CutoffOnDate:
		return v.Date.Format("02Jan06")
	default:
		return string(v.Kind)
	}
}

// BulletinRef identifies the published bulletin a cutoff pair was read from.
type BulletinRef struct {
	Month time.Month `json:"-"`
	Year  int        `json:"year"`
	URL   string     `json:"url"`
}

// MarshalJSON emits the month by name so API consumers see "September"
// rather than an index.
func (r BulletinRef) MarshalJSON() ([]byte, error) {
	type alias BulletinRef
	return json.Marshal(struct {
		alias
		Month string `json:"month"`
	}{alias(r), r.Month.String()})
}

// CutoffPair holds the two cutoff values extracted from one bulletin for a
// single (country, preference) pair.
type CutoffPair struct {
	FilingCutoff      CutoffValue `json:"filing_cutoff"`
	FinalActionCutoff CutoffValue `json:"final_action_cutoff"`
	Country           string      `json:"country"`
	Preference        string      `json:"preference"`
	Bulletin          BulletinRef `json:"bulletin"`
}
