// Package run holds the record of a batch calculation: the descriptor
// columns, one row per input molecule, and timing.
package run

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/pkg/errors"
)

// Row is the outcome for one input molecule. Values is aligned with the
// run's Descriptors; slots that could not be computed are nil and their
// reason is in Errors keyed by descriptor name.
type Row struct {
	Index  int               `json:"index"`
	Input  string            `json:"input"`
	Name   string            `json:"name,omitempty"`
	Values []any             `json:"values"`
	Errors map[string]string `json:"errors,omitempty"`
	// ParseError is set when the input could not be read as a molecule.
	ParseError string `json:"parse_error,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
}

// Failed reports whether the input never reached the calculator.
func (r Row) Failed() bool { return r.ParseError != "" }

// Run is one Calculate call.
type Run struct {
	ID          uuid.UUID     `json:"id"`
	Descriptors []string      `json:"descriptors"`
	Rows        []Row         `json:"rows"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	// Export is set once the run has been written to object storage.
	Export *Export `json:"export,omitempty"`
}

// Export locates the exported copies of a run.
type Export struct {
	CSVKey  string `json:"csv_key"`
	JSONKey string `json:"json_key"`
	// Presigned download URLs, when the exporter is configured for them.
	CSVURL  string `json:"csv_url,omitempty"`
	JSONURL string `json:"json_url,omitempty"`
}

// New starts a run over the given columns.
func New(columns []string) *Run {
	return &Run{
		ID:          uuid.New(),
		Descriptors: columns,
		StartedAt:   time.Now().UTC(),
	}
}

// Finish stamps the duration.
func (r *Run) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

// Stats summarises a run.
type Stats struct {
	Molecules   int `json:"molecules"`
	ParseErrors int `json:"parse_errors"`
	Missing     int `json:"missing"`
	Cached      int `json:"cached"`
}

func (r *Run) Stats() Stats {
	s := Stats{Molecules: len(r.Rows)}
	for _, row := range r.Rows {
		if row.Failed() {
			s.ParseErrors++
		}
		if row.Cached {
			s.Cached++
		}
		s.Missing += len(row.Errors)
	}
	return s
}

// RowFromResult converts a calculator result into a Row. Sentinel slots
// become nil values with their error message recorded.
func RowFromResult(index int, input string, res descriptor.Result) Row {
	row := Row{Index: index, Input: input, Values: make([]any, res.Len())}
	if m := res.Mol(); m != nil {
		row.Name = m.Name()
	}
	names := res.Names()
	for i := 0; i < res.Len(); i++ {
		v := res.At(i)
		if miss, ok := descriptor.AsMissing(v); ok {
			if row.Errors == nil {
				row.Errors = make(map[string]string)
			}
			row.Errors[names[i]] = miss.Error()
		}
		row.Values[i] = descriptor.JSONValue(v)
	}
	return row
}

// ParseFailure is the row recorded for an input that did not parse.
func ParseFailure(index int, input string, err error, columns int) Row {
	return Row{Index: index, Input: input, Values: make([]any, columns), ParseError: err.Error()}
}

// ErrNotFound is returned by repositories for an unknown run id.
var ErrNotFound = errors.New(errors.ErrCodeRunNotFound, "calculation run not found")

// Repository persists runs.
type Repository interface {
	Save(ctx context.Context, r *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]*Run, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
