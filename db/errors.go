package db

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrItemNotAvailable    = errors.New("item is not available")
	ErrItemBooked          = errors.New("item is currently booked")
	ErrBookingNotActive    = errors.New("booking is not active")
	ErrNothingToBook       = errors.New("no available items in kit")
	ErrNothingToReturn     = errors.New("no booked items in kit")
	ErrKitInUse            = errors.New("kit has booked items")
	ErrItemHasHistory      = errors.New("item has booking or note history")
	ErrDepartmentInUse     = errors.New("department still has users")
	ErrAlreadyApplied      = errors.New("already applied to this shift")
	ErrShiftFull           = errors.New("shift is full")
	ErrMissionNotOpen      = errors.New("mission is not open")
	ErrInvalidState        = errors.New("invalid state for this action")
	ErrInviteAlreadyUsed   = errors.New("invite already used or not found")
	ErrForbiddenDepartment = errors.New("no access to this department")
)

// notFound maps gorm's record-not-found to ErrNotFound and leaves other errors untouched.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
