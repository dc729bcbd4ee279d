// Package expiry finds expired mint records, notifies the owner's friends and
// deactivates the records exactly once.
package expiry

import (
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
)

// Scan returns the records that are active and whose expiry is at or before now,
// in input order. It does not modify records.
func Scan(records []domain.MintRecord, now time.Time) []domain.MintRecord {
	expired, _, _ := Partition(records, now)
	return expired
}

// Partition splits a snapshot into records due for notification, records still
// running and records already deactivated.
func Partition(records []domain.MintRecord, now time.Time) (expired, active, inactive []domain.MintRecord) {
	expired = make([]domain.MintRecord, 0)
	for _, r := range records {
		switch {
		case !r.IsActive:
			inactive = append(inactive, r)
		case r.ExpiredAt(now):
			expired = append(expired, r)
		default:
			active = append(active, r)
		}
	}
	return expired, active, inactive
}
