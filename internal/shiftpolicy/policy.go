/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package shiftpolicy maps points in time to the shifts still schedulable
// for a date. Everything here is a pure function of its arguments so callers
// can test against any fixed clock.
package shiftpolicy

import (
	"time"

	"github.com/lopanworks/lopan_admin/internal/models"
)

// CutoffTime is a time of day after which a shift can no longer be selected
// for the current date.
type CutoffTime struct {
	Hour   int
	Minute int
}

// Cutoffs maps each shift to its selection cutoff.
type Cutoffs map[models.Shift]CutoffTime

// DefaultCutoffs returns the plant's standard shift cutoffs: morning closes
// at noon, evening at 19:00.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		models.ShiftMorning: {Hour: 12, Minute: 0},
		models.ShiftEvening: {Hour: 19, Minute: 0},
	}
}

// at anchors the cutoff to the given date in that date's location.
func (c CutoffTime) at(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// Policy evaluates shift eligibility against a set of cutoffs.
type Policy struct {
	cutoffs Cutoffs
}

// New creates a policy. Nil or empty cutoffs fall back to the defaults.
func New(cutoffs Cutoffs) *Policy {
	if len(cutoffs) == 0 {
		cutoffs = DefaultCutoffs()
	}
	return &Policy{cutoffs: cutoffs}
}

// Cutoff returns the cutoff configured for the shift.
func (p *Policy) Cutoff(shift models.Shift) (CutoffTime, bool) {
	c, ok := p.cutoffs[shift]
	return c, ok
}

// AllowedShifts returns the shifts still schedulable for date when the
// current time is now. Future dates allow every shift, past dates none, and
// today excludes each shift whose cutoff has already passed. A shift never
// reappears for a date once its cutoff is behind now.
func (p *Policy) AllowedShifts(date, now time.Time) []models.Shift {
	switch {
	case isBefore(date, now):
		return nil
	case isAfter(date, now):
		return models.AllShifts()
	}

	var allowed []models.Shift
	for _, shift := range models.AllShifts() {
		cutoff, ok := p.cutoffs[shift]
		if !ok {
			continue
		}
		if now.Before(cutoff.at(date)) {
			allowed = append(allowed, shift)
		}
	}
	return allowed
}

// ShiftsRestricted reports whether cutoff filtering applies to date at now.
// Only the current calendar day is subject to cutoffs; future dates are
// unrestricted and past dates are closed outright rather than restricted.
func (p *Policy) ShiftsRestricted(date, now time.Time) bool {
	return !isBefore(date, now) && !isAfter(date, now)
}

// IsShiftAllowed reports whether one shift is schedulable for date at now.
func (p *Policy) IsShiftAllowed(shift models.Shift, date, now time.Time) bool {
	for _, s := range p.AllowedShifts(date, now) {
		if s == shift {
			return true
		}
	}
	return false
}

// EditContext describes how the time context of a shift-aware batch has
// drifted between two observation points.
type EditContext struct {
	Stale  bool   // The shift's cutoff passed between submittedAt and now
	Reason string // Human-readable explanation when stale
}

// CheckEditContext classifies a cross-time-point operation. A batch whose
// shift was selectable at submittedAt but whose cutoff has since passed is
// flagged stale; the caller decides whether that blocks anything.
func (p *Policy) CheckEditContext(scheduling models.Scheduling, submittedAt, now time.Time) EditContext {
	if !scheduling.IsShiftAware() {
		return EditContext{}
	}
	cutoff, ok := p.cutoffs[scheduling.Shift]
	if !ok {
		return EditContext{}
	}

	boundary := cutoff.at(scheduling.TargetDate)
	if submittedAt.Before(boundary) && !now.Before(boundary) {
		return EditContext{
			Stale: true,
			Reason: "the " + string(scheduling.Shift) + " shift cutoff for " +
				scheduling.TargetDate.Format("2006-01-02") + " passed after this batch was submitted",
		}
	}
	return EditContext{}
}

// isBefore reports whether date's calendar day is strictly before now's.
func isBefore(date, now time.Time) bool {
	return dayStart(date).Before(dayStart(now))
}

// isAfter reports whether date's calendar day is strictly after now's.
func isAfter(date, now time.Time) bool {
	return dayStart(date).After(dayStart(now))
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
