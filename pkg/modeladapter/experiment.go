package modeladapter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/neurotech-brt/agentium/pkg/provider"
)

// experimentConcurrency bounds how many arms run at once, regardless of how
// many the caller configures.
const experimentConcurrency = 8

// ExperimentArm names one provider kind/model pairing under comparison.
type ExperimentArm struct {
	Kind  provider.Kind
	Model string
}

// ExperimentResult is one arm's outcome. Err is set instead of Result when
// the arm's dispatch failed; the experiment still reports every other arm.
type ExperimentResult struct {
	Arm    ExperimentArm
	Result GenerateResult
	Err    error
}

// RunExperiment dispatches the same prompt against every arm concurrently
// (bounded by experimentConcurrency) and reports per-arm results without
// selecting a winner — judging belongs to the Critic Engine, not here, to
// avoid creating a second authority over task acceptance (SPEC_FULL.md
// Model Adapter supplement).
func (a *Adapter) RunExperiment(ctx context.Context, arms []ExperimentArm, systemPrompt, userMessage string) []ExperimentResult {
	results := make([]ExperimentResult, len(arms))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, experimentConcurrency)

	for i, arm := range arms {
		i, arm := i, arm
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ExperimentResult{Arm: arm, Err: ctx.Err()}
				return nil
			}

			result, err := a.Generate(gctx, arm.Kind, nil, systemPrompt, userMessage, GenerateOptions{Model: arm.Model})
			results[i] = ExperimentResult{Arm: arm, Result: result, Err: err}
			return nil
		})
	}

	// Every arm error is captured per-result rather than propagated, so a
	// single failing arm never aborts the others — errgroup's cancellation
	// is only used to honor the caller's ctx, not arm failures.
	_ = g.Wait()
	return results
}
