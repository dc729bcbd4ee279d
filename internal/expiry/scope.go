package expiry

import (
	"strings"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
)

// Trigger names what started a run; it labels metrics and logs.
const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
	TriggerTask     = "task"
)

// Scope selects the users a run processes: one user, or every user with active records.
type Scope struct {
	UserID  string `json:"user_id,omitempty"`
	All     bool   `json:"all,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

func (s Scope) Validate() error {
	userID := strings.TrimSpace(s.UserID)

	switch {
	case s.All && userID != "":
		return apperrors.NewValidationError("userId and scope=all are mutually exclusive")
	case !s.All && userID == "":
		return apperrors.NewValidationError("userId parameter required")
	}
	return nil
}
