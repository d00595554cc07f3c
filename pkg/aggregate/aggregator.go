package aggregate

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/pathutil"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
)

// Result is one aggregation pass's output plus derivation accounting.
type Result struct {
	Data         map[string]interface{}
	AppliedRules int
	SkippedRules int
}

// Aggregator merges documents into a schema-shaped structure. With no
// collection target the documents merge directly, left to right; with a
// target each document becomes one element of the array at the target path.
type Aggregator struct {
	logger logging.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger attaches a logger for derivation diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logging.OrNoOp(logger)
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{logger: &logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate merges the documents under the schema's directives. Empty input
// yields the schema's empty shape, never nil. Derivation rules that find
// nothing to collect are skipped and counted, not fatal.
func (a *Aggregator) Aggregate(docs []*document.Document, s *schema.Schema) (*Result, error) {
	if s == nil {
		return nil, pkgerrors.NewConfigurationError("schema is required for aggregation", nil)
	}

	data := schema.EmptyShape(s)
	if data == nil {
		data = make(map[string]interface{})
	}

	if s.HasCollectionTarget() {
		elements := ExtractParts(docs)
		values := make([]interface{}, len(elements))
		for i, el := range elements {
			values[i] = deepCopyValue(el)
		}
		if err := pathutil.Set(data, s.CollectionTarget, values); err != nil {
			return nil, pkgerrors.NewAggregationError(
				fmt.Sprintf("cannot place elements at collection target %q", s.CollectionTarget), err)
		}
		a.logger.Debug("collected elements at target",
			logging.String("target", s.CollectionTarget),
			logging.Int("elements", len(values)))
	} else {
		for _, doc := range docs {
			if doc == nil {
				continue
			}
			for key, value := range doc.Metadata() {
				data[key] = deepCopyValue(value)
			}
		}
	}

	result := &Result{Data: data}
	a.applyDerivations(result, s)
	return result, nil
}

// applyDerivations runs each rule: collect values at its source path across
// the aggregate, optionally deduplicate, and write them to the target field.
func (a *Aggregator) applyDerivations(result *Result, s *schema.Schema) {
	for _, rule := range s.Derivations {
		values, ok := pathutil.Collect(result.Data, rule.SourcePath)
		if !ok || len(values) == 0 {
			result.SkippedRules++
			a.logger.Debug("derivation rule found nothing to collect",
				logging.String("source", rule.SourcePath),
				logging.String("target", rule.TargetField))
			continue
		}

		if rule.Unique {
			values = dedupe(values)
		}

		if err := pathutil.Set(result.Data, rule.TargetField, values); err != nil {
			result.SkippedRules++
			a.logger.Warn("derivation rule target not writable",
				logging.String("target", rule.TargetField),
				logging.Err(err))
			continue
		}

		result.AppliedRules++
		a.logger.Debug("applied derivation rule",
			logging.String("source", rule.SourcePath),
			logging.String("target", rule.TargetField),
			logging.Int("values", len(values)))
	}
}

// dedupe removes duplicate values preserving first-occurrence order.
func dedupe(values []interface{}) []interface{} {
	seen := make(map[string]struct{}, len(values))
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		key := dedupeKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// dedupeKey renders a value to a comparable form. JSON keeps composite
// values (maps, slices) comparable by content.
func dedupeKey(v interface{}) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(b)
}
