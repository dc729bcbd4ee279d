package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/jobs"
)

type taskAccepted struct {
	TaskID string `json:"taskId"`
}

// checkExpired runs the expiry check for ?userId=<id> or ?scope=all. With ?async=true the
// check is queued and the task id returned instead of the summary.
func (a *api) checkExpired(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope := expiry.Scope{UserID: q.Get("userId"), Trigger: expiry.TriggerHTTP}
	switch q.Get("scope") {
	case "":
	case "all":
		scope.All = true
	default:
		a.fail(w, r, apperrors.NewValidationError("scope must be \"all\" when set"))
		return
	}

	if err := scope.Validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	async := false
	if raw := q.Get("async"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			a.fail(w, r, apperrors.NewValidationError("async must be a boolean"))
			return
		}
		async = v
	}

	if async {
		a.enqueue(w, r, scope)
		return
	}

	summary, err := a.deps.Expiry.Run(r.Context(), scope)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (a *api) enqueue(w http.ResponseWriter, r *http.Request, scope expiry.Scope) {
	if a.deps.Jobs == nil {
		a.fail(w, r, apperrors.NewValidationError("async checks are not enabled"))
		return
	}

	taskID, err := a.deps.Jobs.EnqueueExpiryScan(r.Context(), jobs.ExpiryScanPayload{
		UserID:  scope.UserID,
		All:     scope.All,
		Trigger: expiry.TriggerTask,
	})
	if err != nil {
		a.log.ErrorContext(r.Context(), "enqueue expiry scan failed", slog.Any("error", err))
		a.fail(w, r, apperrors.NewDatabaseError(err))
		return
	}

	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: taskID})
}
