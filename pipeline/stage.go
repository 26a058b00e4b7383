package pipeline

import "context"

// Stage is one unit of the pipeline DAG: it consumes upstream artifacts and
// produces one downstream artifact, tracking completed work in its ledger.
type Stage interface {
	// Name is the stage's registry name (also its ledger name).
	Name() string

	// Dependencies lists the names of stages whose output this stage
	// consumes.
	Dependencies() []string

	// Inputs lists the upstream artifacts to validate before running.
	Inputs() []Input

	// Plan reports how much new or changed upstream input the stage would
	// process, without performing any processing. force plans as if the
	// stage's ledger were empty.
	Plan(ctx context.Context, force bool) (*StagePlan, error)

	// Run processes pending items and returns the aggregated outcome.
	Run(ctx context.Context) (*Outcome, error)
}

// Input declares one upstream artifact dependency: the artifact file and the
// producer's ledger slot that must account for every record in it.
type Input struct {
	Artifact string
	Producer string
	Slot     string
}

// StagePlan is one stage's entry in an execution plan.
type StagePlan struct {
	Stage   string
	Total   int
	Pending int

	// NeedsInit marks a stage whose output artifact does not exist yet.
	// Such a stage runs even with zero pending items, so an empty artifact
	// is materialized and downstream can tell "empty" from "never ran".
	NeedsInit bool
}

// State tracks a stage through one orchestrator run. Failed is not
// terminal: the next run treats any non-ledgered hashes as pending again.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return "unknown"
}
