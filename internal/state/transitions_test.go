package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/mintwatch/internal/domain"
)

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{name: "active to notifying", from: StateActive, to: StateNotifying, expected: true},
		{name: "active to inactive", from: StateActive, to: StateInactive, expected: true},
		{name: "notifying to inactive", from: StateNotifying, to: StateInactive, expected: true},
		{name: "notifying back to active", from: StateNotifying, to: StateActive, expected: true},
		{name: "inactive is terminal", from: StateInactive, to: StateActive, expected: false},
		{name: "inactive cannot notify", from: StateInactive, to: StateNotifying, expected: false},
		{name: "unknown state invalid", from: State("unknown"), to: StateInactive, expected: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}

func TestTransition_RecordsAllowedOnly(t *testing.T) {
	var seen [][2]string
	RegisterTransitionRecorder(func(from, to string) {
		seen = append(seen, [2]string{from, to})
	})
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	assert.NoError(t, Transition(StateActive, StateNotifying))
	assert.ErrorIs(t, Transition(StateInactive, StateActive), ErrInvalidTransition)

	assert.Equal(t, [][2]string{{"active", "notifying"}}, seen)
}

func TestOf(t *testing.T) {
	record := domain.NewMintRecord(domain.MintInput{TokenID: 1, TxHash: "0x1"}, time.Now())
	assert.Equal(t, StateActive, Of(record))

	record.IsActive = false
	assert.Equal(t, StateInactive, Of(record))
}
