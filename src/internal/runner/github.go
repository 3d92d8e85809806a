package runner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/github"
	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/report"
	"github.com/gh-nvat/iacguard/src/pkg/template"
	"github.com/gh-nvat/iacguard/src/pkg/trace"
)

const (
	// GitHub Comment body length limit is 65536 characters
	GH_COMMENT_MAX_LENGTH = 65_000
)

const commentTruncatedNotice = "\n\n> [!NOTE]\n> Report truncated. See the job output or the exported report for the full content.\n"

var (
	githubCommentMaxLength = GH_COMMENT_MAX_LENGTH
)

// RunnerGitHub additionally publishes the report as a pull request comment
type RunnerGitHub struct {
	RunnerBase

	options  *Options
	ghclient github.GitHubClient

	prInfo *models.PullRequest
}

// make RunnerGitHub implement RunnerInterface
var _ RunnerInterface = (*RunnerGitHub)(nil)

func NewRunnerGitHub(
	ctx context.Context,
	options *Options,
	ghclient github.GitHubClient,
	scanner Scanner,
	rules configcheck.Rules,
	evaluator *configcheck.RegoEvaluator,
	renderer *template.Renderer,
) (*RunnerGitHub, error) {
	if ghclient == nil {
		return nil, fmt.Errorf("GitHub client is not initialized")
	}
	baseRunner, err := NewRunnerBase(ctx, options, scanner, rules, evaluator, renderer)
	if err != nil {
		return nil, err
	}
	runner := &RunnerGitHub{
		RunnerBase: *baseRunner,
		ghclient:   ghclient,
		options:    options,
	}
	return runner, nil
}

func (r *RunnerGitHub) Initialize() error {
	lg := logger.WithField("func", "RunnerGitHub.Initialize()")
	lg.Info("Initializing runner: starting...")

	pr, err := r.ghclient.GetPR(r.Context, r.options.GhRepo, r.options.GhPrNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch pull request info: %w", err)
	}
	r.prInfo = pr

	if maxLengthStr := os.Getenv("GITHUB_COMMENT_MAX_LENGTH"); maxLengthStr != "" {
		if _, err := fmt.Sscanf(maxLengthStr, "%d", &githubCommentMaxLength); err != nil || githubCommentMaxLength <= 0 {
			lg.WithField("GITHUB_COMMENT_MAX_LENGTH", maxLengthStr).WithField("error", err).Warn("GITHUB_COMMENT_MAX_LENGTH env was set but is not a positive int. Will use default value of 65,000.")
			githubCommentMaxLength = GH_COMMENT_MAX_LENGTH
		}
	}
	lg.WithField("base", pr.BaseSHA).WithField("head", pr.HeadSHA).Info("Initializing runner: done.")
	return r.RunnerBase.Initialize()
}

// Process stamps the pull request commits onto the base report
func (r *RunnerGitHub) Process() (*report.Report, error) {
	rep, err := r.RunnerBase.Process()
	if err != nil {
		return nil, err
	}
	if r.prInfo != nil {
		rep.BaseCommit = r.prInfo.BaseSHA
		rep.HeadCommit = r.prInfo.HeadSHA
	}
	return rep, nil
}

func (r *RunnerGitHub) Output(rep *report.Report) error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.RunnerBase.Output(rep); err != nil {
		return err
	}
	if err := r.outputGitHubComment(rep); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

// Post comment to GitHub PR, updating the previous one for the same target
func (r *RunnerGitHub) outputGitHubComment(rep *report.Report) error {
	logger.Info("OutputGitHubComment: starting...")

	renderedMarkdown, err := r.Renderer.RenderWithTemplates(r.Options.TemplatesPath, rep.Data())
	if err != nil {
		logger.WithField("error", err).Error("Failed to render markdown template")
		return err
	}
	logger.WithField("renderedMarkdown", renderedMarkdown).Debug("Rendered markdown")

	body := truncateComment(renderedMarkdown, githubCommentMaxLength)
	signature := template.Signature(rep.Target)
	comment, err := github.UpsertComment(r.Context, r.ghclient, r.options.GhRepo, r.options.GhPrNumber, signature, body)
	if err != nil {
		logger.WithField("error", err).Error("Failed to publish GitHub comment")
		return fmt.Errorf("failed to publish comment: %w", err)
	}

	logger.WithField("commentID", comment.ID).Info("OutputGitHubComment: done.")
	return nil
}

// truncateComment cuts body to at most max bytes including the notice.
// The signature is on the first line, so it survives.
func truncateComment(body string, max int) string {
	if len(body) <= max {
		return body
	}
	cut := max - len(commentTruncatedNotice)
	if cut < 0 {
		cut = 0
	}
	return strings.ToValidUTF8(body[:cut], "") + commentTruncatedNotice
}
