package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("invalid vote input")
	ErrVoteNotFound   = errors.New("vote not found")
	ErrVoteEnded      = errors.New("vote has already ended")
	ErrUnauthorized   = errors.New("voter is not authorized for this vote")
	ErrInvalidOption  = errors.New("option index is out of range")
	ErrBudgetExceeded = errors.New("credit budget exceeded")
	ErrStore          = errors.New("vote store failure")
)

// BudgetExceededError carries the amounts a caller needs to render a useful
// rejection: how many credits the submission asked for and how many the voter
// still had available. It unwraps to ErrBudgetExceeded so errors.Is keeps
// working at the transport boundary.
type BudgetExceededError struct {
	Attempted int
	Available int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("credit budget exceeded: attempted %d credits, %d available", e.Attempted, e.Available)
}

func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}
