package runner

import (
	"context"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/template"
)

// RunnerLocal prints the report and optionally exports it to the output directory
type RunnerLocal struct {
	RunnerBase
}

// make RunnerLocal implement RunnerInterface
var _ RunnerInterface = (*RunnerLocal)(nil)

func NewRunnerLocal(
	ctx context.Context,
	options *Options,
	scanner Scanner,
	rules configcheck.Rules,
	evaluator *configcheck.RegoEvaluator,
	renderer *template.Renderer,
) (*RunnerLocal, error) {
	baseRunner, err := NewRunnerBase(ctx, options, scanner, rules, evaluator, renderer)
	if err != nil {
		return nil, err
	}
	runner := &RunnerLocal{
		RunnerBase: *baseRunner,
	}
	return runner, nil
}
