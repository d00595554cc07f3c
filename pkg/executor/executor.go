// Package executor runs the per-document processor over a file list, either
// strictly in order or across concurrent batches, consulting the bounds
// monitor as it goes. Individual file failures are skipped and collected;
// only a run with zero surviving documents is reported as failed.
package executor

import (
	"context"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
)

// Executor processes a file list into documents.
type Executor interface {
	Execute(ctx context.Context, files []string, rules *schema.RuleSet, monitor *bounds.Monitor) (*Report, error)
}

// Report is one run's outcome. Documents holds every success; Errors holds
// one entry per failed file plus any bounds violation; Warnings holds
// non-fatal findings such as approaching-limit notices. For parallel runs
// Documents is ordered by batch completion, not by input position.
type Report struct {
	Documents []*document.Document
	Errors    []error
	Warnings  []string
	Metrics   Metrics
}

// Degraded reports whether some files failed while others survived.
func (r *Report) Degraded() bool {
	return len(r.Documents) > 0 && len(r.Errors) > 0
}

// finalize applies the shared failure rule: a run fails outright only when
// nothing survived and at least one error occurred.
func (r *Report) finalize() (*Report, error) {
	if len(r.Documents) == 0 && len(r.Errors) > 0 {
		return r, r.Errors[0]
	}
	return r, nil
}
