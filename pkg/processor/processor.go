// Package processor turns one file into one Document: read the raw content,
// split the metadata block from the body, and validate the metadata against
// the active rule set. Each stage failure surfaces that stage's error and no
// partial document.
package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/frontmatter"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/source"
)

// maxDetailedFieldErrors caps how many field failures are spelled out in a
// validation error message.
const maxDetailedFieldErrors = 3

// Processor builds Documents from files.
type Processor struct {
	reader    source.Reader
	extractor frontmatter.Extractor
	logger    logging.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger attaches a logger for per-file diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(p *Processor) {
		p.logger = logging.OrNoOp(logger)
	}
}

// New creates a Processor. Reader and extractor are required collaborators.
func New(reader source.Reader, extractor frontmatter.Extractor, opts ...Option) (*Processor, error) {
	if reader == nil {
		return nil, pkgerrors.NewConfigurationError("reader is required", nil)
	}
	if extractor == nil {
		return nil, pkgerrors.NewConfigurationError("extractor is required", nil)
	}
	p := &Processor{
		reader:    reader,
		extractor: extractor,
		logger:    &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process reads, extracts, and validates one file. A nil rule set skips
// metadata validation; the metadata passes through as-is.
func (p *Processor) Process(ctx context.Context, path string, rules *schema.RuleSet) (*document.Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, pkgerrors.NewConfigurationError("document path is empty", nil)
	}

	content, err := p.reader.Read(ctx, path)
	if err != nil {
		p.logger.Debug("read failed", logging.String("path", path), logging.Err(err))
		return nil, err
	}

	parts, err := p.extractor.Extract(content)
	if err != nil {
		p.logger.Debug("extraction failed", logging.String("path", path), logging.Err(err))
		return nil, pkgerrors.NewExtractionError(path, err)
	}

	if rules != nil {
		if result := rules.Validate(parts.Metadata); !result.Valid {
			err := pkgerrors.NewValidationError(path, fmt.Errorf("%s", summarizeFieldErrors(result.Errors)))
			p.logger.Debug("validation failed",
				logging.String("path", path),
				logging.Int("field_errors", len(result.Errors)))
			return nil, err
		}
	}

	doc, err := document.New(path, parts.Metadata, parts.Body)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("processed document",
		logging.String("path", path),
		logging.Int("metadata_keys", len(parts.Metadata)))
	return doc, nil
}

// summarizeFieldErrors renders the first few field failures and counts the
// rest.
func summarizeFieldErrors(errs []schema.ValidationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d field error(s)", len(errs))
	for i, fe := range errs {
		if i >= maxDetailedFieldErrors {
			fmt.Fprintf(&b, "; and %d more", len(errs)-maxDetailedFieldErrors)
			break
		}
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", fe.Path, fe.Message)
	}
	return b.String()
}
