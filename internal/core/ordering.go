package core

import (
	"fmt"

	"BookLedger/internal/event"
)

// OrderingValidator enforces the single ordering contract the engine relies
// on: the upstream delivers events in strictly increasing
// (block, transaction index, log index) order. A position at or before the
// head is tolerated only for duplicates, which the idempotency check already
// classified. Not thread-safe — only the single-threaded engine touches it.
type OrderingValidator struct {
	head    event.LogPos
	started bool

	outOfOrder int64
}

func NewOrderingValidator() *OrderingValidator {
	return &OrderingValidator{}
}

// Validate checks pos against the current head. Duplicates may sit anywhere
// at or before the head; a NEW event there is an upstream ordering bug and
// processing must stop.
func (v *OrderingValidator) Validate(pos event.LogPos, isDuplicate bool) error {
	if !v.started {
		return nil
	}
	if pos.Cmp(v.head) <= 0 {
		if isDuplicate {
			return nil
		}
		v.outOfOrder++
		return fmt.Errorf("out-of-order event: head=%s, got=%s", v.head, pos)
	}
	return nil
}

// Advance moves the head to pos after an event fully persisted.
func (v *OrderingValidator) Advance(pos event.LogPos) {
	v.head = pos
	v.started = true
}

// Head returns the last fully processed position.
func (v *OrderingValidator) Head() (event.LogPos, bool) {
	return v.head, v.started
}

// Restore seeds the head during recovery.
func (v *OrderingValidator) Restore(pos event.LogPos) {
	v.head = pos
	v.started = true
}

// OutOfOrderCount reports rejected deliveries, for monitoring.
func (v *OrderingValidator) OutOfOrderCount() int64 {
	return v.outOfOrder
}
