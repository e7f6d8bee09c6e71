package models

import "errors"

var (
	ErrInvalidParameters     = errors.New("invalid parameters")
	ErrPaymentExceedsBalance = errors.New("payment exceeds outstanding balance")
	ErrDuplicateTask         = errors.New("installment already has a task for that date")
	ErrLoanNotPayable        = errors.New("loan does not accept payments in its current status")
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrTaskClosed            = errors.New("task is closed")
)
