package state

import "github.com/Proton-105/mintwatch/internal/domain"

// State is a stage in a mint record's expiration lifecycle.
type State string

const (
	// StateActive records are eligible for expiry scans.
	StateActive State = "active"
	// StateNotifying records are expired and their owner's friends are being messaged.
	StateNotifying State = "notifying"
	// StateInactive records were deactivated and are never scanned again.
	StateInactive State = "inactive"
)

// Of returns the persisted lifecycle state of a record. Notifying only exists in memory
// while an expiry run owns the record.
func Of(record domain.MintRecord) State {
	if record.IsActive {
		return StateActive
	}
	return StateInactive
}
