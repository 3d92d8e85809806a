package runner

import (
	"context"

	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/report"
)

type RunnerInterface interface {
	// Initialize the runner with necessary context and data
	Initialize() error

	// Main routine: scan the target and check the config, then merge both into a report
	Process() (*report.Report, error)

	// Handling the export
	Output(rep *report.Report) error
}

// Scanner runs the analyzers against a target directory
type Scanner interface {
	Scan(ctx context.Context, target string, requested []models.Tool) (*models.Verdict, error)
}
