package service

import (
	"time"

	"github.com/noah-isme/civic-report-api/internal/models"
)

// StatusMachine applies the report transition table and its side effects.
type StatusMachine struct {
	rules *ReportRules
}

// NewStatusMachine builds a machine over the shared rule table.
func NewStatusMachine(rules *ReportRules) *StatusMachine {
	if rules == nil {
		rules = DefaultReportRules()
	}
	return &StatusMachine{rules: rules}
}

// Allowed returns the statuses reachable from current. Unknown statuses have none.
func (m *StatusMachine) Allowed(current models.ReportStatus) []models.ReportStatus {
	next := m.rules.Transitions[current]
	out := make([]models.ReportStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> next is an edge of the table.
func (m *StatusMachine) CanTransition(current, next models.ReportStatus) bool {
	for _, candidate := range m.rules.Transitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Apply moves the report to next and stamps first-entry timestamps and resolution points.
// Callers must check CanTransition first.
func (m *StatusMachine) Apply(report *models.Report, next models.ReportStatus, now time.Time) {
	report.Status = next
	switch next {
	case models.StatusAssigned:
		if report.AssignedAt == nil {
			report.AssignedAt = &now
		}
	case models.StatusInProgress:
		if report.InProgressAt == nil {
			report.InProgressAt = &now
		}
	case models.StatusResolved:
		if report.ResolvedAt == nil {
			report.ResolvedAt = &now
			report.PointsAwarded = m.rules.PointsFor(report.Category)
		}
	}
}
