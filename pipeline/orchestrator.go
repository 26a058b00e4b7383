// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Orchestrator sequences stages in dependency order, computes dry-run plans,
// and performs cascading ledger invalidation for force-reprocessing.
type Orchestrator struct {
	stages   []Stage
	byName   map[string]Stage
	ledgers  *Ledgers
	resolver *Resolver
	logger   *slog.Logger
}

// PlanEntry is one stage's line in an ExecutionPlan.
type PlanEntry struct {
	Stage     string
	Total     int
	Pending   int
	WillClear bool
	Blocked   error // dependency missing or hash mismatch, nil otherwise
}

// ExecutionPlan lists, per requested stage, the work a run would perform.
// Computable without performing any processing (check-only dry runs).
type ExecutionPlan struct {
	Force   bool
	Cleared []string // ledgers the force cascade would clear
	Entries []PlanEntry
}

// ReportEntry is one stage's result in a Report.
type ReportEntry struct {
	Stage   string
	State   State
	Outcome *Outcome
	Err     error
}

// Report aggregates one orchestrator invocation.
type Report struct {
	Entries []ReportEntry
}

// NewOrchestrator registers stages in dependency order. Every declared
// dependency must name an earlier stage; the registry is validated up front
// so force cascades are always computable later.
func NewOrchestrator(ledgers *Ledgers, resolver *Resolver, logger *slog.Logger, stages ...Stage) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		stages:   stages,
		byName:   make(map[string]Stage, len(stages)),
		ledgers:  ledgers,
		resolver: resolver,
		logger:   logger,
	}
	for i, s := range stages {
		if _, dup := o.byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name())
		}
		for _, dep := range s.Dependencies() {
			found := false
			for _, earlier := range stages[:i] {
				if earlier.Name() == dep {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("%w: stage %q depends on unregistered stage %q",
					ErrForceInvalidation, s.Name(), dep)
			}
		}
		o.byName[s.Name()] = s
	}
	return o, nil
}

// StageNames returns all registered stages in dependency order.
func (o *Orchestrator) StageNames() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

// select resolves the requested names (all stages when empty) preserving
// dependency order.
func (o *Orchestrator) selectStages(requested []string) ([]Stage, error) {
	if len(requested) == 0 {
		return o.stages, nil
	}
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		if _, ok := o.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
		}
		want[name] = true
	}
	selected := make([]Stage, 0, len(requested))
	for _, s := range o.stages {
		if want[s.Name()] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

// downstreamClosure returns the names of every stage transitively dependent
// on any of the given stages, including the stages themselves.
func (o *Orchestrator) downstreamClosure(roots []Stage) []string {
	in := make(map[string]bool, len(roots))
	for _, s := range roots {
		in[s.Name()] = true
	}
	// Stages are topologically ordered, so one forward pass closes the set.
	for _, s := range o.stages {
		if in[s.Name()] {
			continue
		}
		for _, dep := range s.Dependencies() {
			if in[dep] {
				in[s.Name()] = true
				break
			}
		}
	}
	closure := make([]string, 0, len(in))
	for _, s := range o.stages {
		if in[s.Name()] {
			closure = append(closure, s.Name())
		}
	}
	return closure
}

// PlanRun computes what a run would do, without processing anything. With
// force, each selected stage plans as if its ledger were empty, and the plan
// records which ledgers the cascade would clear.
func (o *Orchestrator) PlanRun(ctx context.Context, requested []string, force bool) (*ExecutionPlan, error) {
	selected, err := o.selectStages(requested)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{Force: force}
	forced := make(map[string]bool)
	if force {
		plan.Cleared = o.downstreamClosure(selected)
		for _, name := range plan.Cleared {
			forced[name] = true
		}
	}

	for _, s := range selected {
		entry := PlanEntry{Stage: s.Name(), WillClear: forced[s.Name()]}
		if err := o.resolver.Check(s); err != nil {
			if errors.Is(err, ErrDependencyMissing) || errors.Is(err, ErrHashMismatch) {
				entry.Blocked = err
				plan.Entries = append(plan.Entries, entry)
				continue
			}
			return nil, err
		}
		sp, err := s.Plan(ctx, forced[s.Name()])
		if err != nil {
			return nil, err
		}
		entry.Total = sp.Total
		entry.Pending = sp.Pending
		plan.Entries = append(plan.Entries, entry)
	}
	return plan, nil
}

// Execute runs the requested stages in strict dependency order. With force,
// the selected stages' ledgers and all transitively downstream ledgers are
// cleared first, since their "already processed" sets refer to hashes that
// are about to be invalidated.
//
// A stage with zero pending work and an existing output is skipped (no-op,
// not an error); a stage that has never materialized its output runs once
// even with nothing pending. A stage with a missing dependency is skipped
// non-fatally so independent sub-chains still proceed. A hash mismatch fails
// that stage closed. Context cancellation stops the run after the current
// stage has flushed. The returned report is never nil.
func (o *Orchestrator) Execute(ctx context.Context, requested []string, force bool) (*Report, error) {
	report := &Report{}

	selected, err := o.selectStages(requested)
	if err != nil {
		return report, err
	}

	if force {
		closure := o.downstreamClosure(selected)
		o.logger.Warn("force-reprocess: clearing ledgers", "stages", closure)
		for _, name := range closure {
			led, err := o.ledgers.Get(name)
			if err != nil {
				return report, fmt.Errorf("%w: %v", ErrForceInvalidation, err)
			}
			if err := led.Clear(); err != nil {
				return report, fmt.Errorf("%w: %v", ErrForceInvalidation, err)
			}
		}
	}

	var stageErrs []error
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entry := ReportEntry{Stage: s.Name(), State: StateRunning}

		if err := o.resolver.Check(s); err != nil {
			switch {
			case errors.Is(err, ErrDependencyMissing):
				o.logger.Warn("skipping stage", "stage", s.Name(), "reason", err)
				entry.State = StateSkipped
				entry.Err = err
			case errors.Is(err, ErrHashMismatch):
				o.logger.Error("stage refuses to run", "stage", s.Name(), "err", err)
				entry.State = StateFailed
				entry.Err = err
				stageErrs = append(stageErrs, err)
			default:
				return report, err
			}
			report.Entries = append(report.Entries, entry)
			continue
		}

		// Re-plan at execution time: upstream stages in this run may have
		// produced new work since any earlier dry-run plan.
		sp, err := s.Plan(ctx, false)
		if err != nil {
			return report, err
		}
		if sp.Pending == 0 && !sp.NeedsInit {
			o.logger.Info("stage up to date", "stage", s.Name(), "total", sp.Total)
			entry.State = StateSkipped
			entry.Outcome = &Outcome{Candidates: sp.Total, Skipped: sp.Total}
			report.Entries = append(report.Entries, entry)
			continue
		}

		o.logger.Info("running stage", "stage", s.Name(), "pending", sp.Pending, "total", sp.Total)
		outcome, runErr := s.Run(ctx)
		entry.Outcome = outcome
		switch {
		case runErr == nil && (outcome == nil || outcome.Failed == 0):
			entry.State = StateCompleted
		case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
			entry.State = StateFailed
			entry.Err = runErr
			report.Entries = append(report.Entries, entry)
			return report, runErr
		default:
			// Failed(partial): completed items are ledgered, the rest are
			// pending again on the next invocation.
			entry.State = StateFailed
			entry.Err = runErr
			if runErr != nil {
				stageErrs = append(stageErrs, fmt.Errorf("stage %s: %w", s.Name(), runErr))
			} else {
				stageErrs = append(stageErrs, fmt.Errorf("stage %s: %d items failed", s.Name(), outcome.Failed))
			}
		}
		report.Entries = append(report.Entries, entry)
	}

	return report, errors.Join(stageErrs...)
}
