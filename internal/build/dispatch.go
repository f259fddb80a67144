package build

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

// DispatchAPI starts workflow runs
type DispatchAPI interface {
	DispatchWorkflow(ctx context.Context, repo models.Repository, workflowFile, ref string) (int, error)
}

type Dispatcher struct {
	api    DispatchAPI
	logger *slog.Logger
}

func NewDispatcher(api DispatchAPI, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{api: api, logger: logger}
}

// Dispatch requests exactly one run. Only 204 No Content counts as accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, target models.RunTarget) error {
	d.logger.Info("dispatching workflow",
		"repo", target.Repository.FullName(), "workflow", target.Workflow, "ref", target.Branch)

	status, err := d.api.DispatchWorkflow(ctx, target.Repository, target.Workflow, target.Branch)
	if err != nil || status != http.StatusNoContent {
		return &DispatchError{StatusCode: status, Err: err}
	}

	d.logger.Info("workflow dispatch accepted")
	return nil
}
