package models

import (
	"fmt"
	"strings"
)

// Cadence is the repayment frequency of a loan.
type Cadence string

const (
	CadenceDaily    Cadence = "DAILY"
	CadenceWeekly   Cadence = "WEEKLY"
	CadenceBiweekly Cadence = "BIWEEKLY"
	CadenceMonthly  Cadence = "MONTHLY"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceBiweekly, CadenceMonthly:
		return true
	}
	return false
}

// ParseCadence accepts any casing of a known cadence.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown cadence %q", ErrInvalidParameters, s)
	}
	return c, nil
}

type LoanStatus string

const (
	LoanRequested LoanStatus = "REQUESTED"
	LoanApproved  LoanStatus = "APPROVED"
	LoanDisbursed LoanStatus = "DISBURSED"
	LoanPaid      LoanStatus = "PAID"
	LoanRejected  LoanStatus = "REJECTED"
	LoanOverdue   LoanStatus = "OVERDUE"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanRequested: {LoanApproved, LoanRejected},
	LoanApproved:  {LoanDisbursed, LoanPaid},
	LoanDisbursed: {LoanPaid, LoanOverdue},
	LoanOverdue:   {LoanPaid},
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanRequested, LoanApproved, LoanDisbursed, LoanPaid, LoanRejected, LoanOverdue:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanPaid || s == LoanRejected
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payable reports whether a payment may be recorded against a loan in this status.
// OVERDUE loans keep collecting even though CanAcceptPayment reports false for them.
func (s LoanStatus) Payable() bool {
	return s == LoanApproved || s == LoanDisbursed || s == LoanOverdue
}

func ParseLoanStatus(s string) (LoanStatus, error) {
	st := LoanStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown loan status %q", ErrInvalidParameters, s)
	}
	return st, nil
}

type InstallmentState string

const (
	InstallmentPending InstallmentState = "PENDING"
	InstallmentPartial InstallmentState = "PARTIAL"
	InstallmentPaid    InstallmentState = "PAID"
	InstallmentOverdue InstallmentState = "OVERDUE"
)

func (s InstallmentState) Valid() bool {
	switch s {
	case InstallmentPending, InstallmentPartial, InstallmentPaid, InstallmentOverdue:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending     TaskStatus = "PENDING"
	TaskInProgress  TaskStatus = "IN_PROGRESS"
	TaskCollected   TaskStatus = "COLLECTED"
	TaskNotFound    TaskStatus = "NOT_FOUND"
	TaskNotHome     TaskStatus = "NOT_HOME"
	TaskCouldNotPay TaskStatus = "COULD_NOT_PAY"
	TaskRescheduled TaskStatus = "RESCHEDULED"
	TaskCancelled   TaskStatus = "CANCELLED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCollected, TaskNotFound, TaskNotHome,
		TaskCouldNotPay, TaskRescheduled, TaskCancelled:
		return true
	}
	return false
}

// IsClosed reports whether a task no longer accepts status changes.
func (s TaskStatus) IsClosed() bool {
	return s == TaskCollected || s == TaskCancelled
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown task status %q", ErrInvalidParameters, s)
	}
	return st, nil
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Rank orders priorities for visiting: HIGH first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

// PriorityForDaysPastDue maps days past due to a visit priority.
func PriorityForDaysPastDue(days int) Priority {
	switch {
	case days > 15:
		return PriorityHigh
	case days > 5:
		return PriorityMedium
	}
	return PriorityLow
}

type MoraState string

const (
	MoraCurrent  MoraState = "CURRENT"
	MoraEarly    MoraState = "EARLY_ARREARS"
	MoraHigh     MoraState = "HIGH_ARREARS"
	MoraCritical MoraState = "CRITICAL_ARREARS"
)

func (m MoraState) Valid() bool {
	switch m {
	case MoraCurrent, MoraEarly, MoraHigh, MoraCritical:
		return true
	}
	return false
}
