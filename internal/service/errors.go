package service

import (
	"errors"
	"fmt"
)

var ErrInvalidSchedule = errors.New("invalid habit schedule")

// InvalidScheduleError is fatal for one habit only; the batch continues.
type InvalidScheduleError struct {
	HabitID int
	Reason  string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("habit %d: %s: %s", e.HabitID, ErrInvalidSchedule.Error(), e.Reason)
}

func (e *InvalidScheduleError) Unwrap() error {
	return ErrInvalidSchedule
}

// StorageError wraps a failed read or write against one of the stores.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
