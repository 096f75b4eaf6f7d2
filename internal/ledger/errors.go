package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownItem is returned for item names that are not in the catalog.
	ErrUnknownItem = errors.New("unknown item")
	// ErrAlreadyHolding is returned when the borrower already holds the item.
	ErrAlreadyHolding = errors.New("already holding item")
	// ErrItemUnavailable matches every *ItemUnavailableError.
	ErrItemUnavailable = errors.New("item unavailable")
	// ErrNotHolding is returned when returning an item the user does not hold.
	ErrNotHolding = errors.New("not holding item")
)

// ItemUnavailableError reports who currently holds the requested item.
type ItemUnavailableError struct {
	Item   string
	Holder string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("%s is held by %s", e.Item, e.Holder)
}

func (e *ItemUnavailableError) Is(target error) bool {
	return target == ErrItemUnavailable
}

// IsDomainError reports whether err is an expected rule violation rather than a failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrAlreadyHolding) ||
		errors.Is(err, ErrItemUnavailable) ||
		errors.Is(err, ErrNotHolding)
}
