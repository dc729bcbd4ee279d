package lifecycle

import "context"

// Stages run in ascending order; hooks within a stage run concurrently.
const (
	StageDrain   = 0 // stop accepting work: readiness, http listener
	StageWorkers = 1 // stop background producers and consumers
	StageClose   = 2 // release connections
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage int
	Fn    func(ctx context.Context) error
}
