package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/moldesc/pkg/errors"
)

// CalculateRequest mirrors the server's request body.
type CalculateRequest struct {
	Descriptors       []map[string]any `json:"descriptors,omitempty"`
	Inputs            []string         `json:"inputs"`
	Format            string           `json:"format,omitempty"`
	ConfID            *int             `json:"conf_id,omitempty"`
	NProc             int              `json:"nproc,omitempty"`
	ExplicitHydrogens *bool            `json:"explicit_hydrogens,omitempty"`
	Export            bool             `json:"export,omitempty"`
	RequestID         string           `json:"request_id,omitempty"`
}

type Row struct {
	Index      int               `json:"index"`
	Input      string            `json:"input"`
	Name       string            `json:"name,omitempty"`
	Values     []any             `json:"values"`
	Errors     map[string]string `json:"errors,omitempty"`
	ParseError string            `json:"parse_error,omitempty"`
	Cached     bool              `json:"cached,omitempty"`
}

type Export struct {
	CSVKey  string `json:"csv_key"`
	JSONKey string `json:"json_key"`
	CSVURL  string `json:"csv_url,omitempty"`
	JSONURL string `json:"json_url,omitempty"`
}

// Run is a finished calculation.
type Run struct {
	ID          uuid.UUID     `json:"id"`
	Descriptors []string      `json:"descriptors"`
	Rows        []Row         `json:"rows"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Export      *Export       `json:"export,omitempty"`
}

// Value returns the value of column name in row i, or nil.
func (r *Run) Value(i int, name string) any {
	if i < 0 || i >= len(r.Rows) {
		return nil
	}
	for j, d := range r.Descriptors {
		if d == name && j < len(r.Rows[i].Values) {
			return r.Rows[i].Values[j]
		}
	}
	return nil
}

type CalculationsClient struct {
	client *Client
}

func (c *CalculationsClient) Calculate(ctx context.Context, req *CalculateRequest) (*Run, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no input molecules")
	}
	var out Run
	if err := c.client.post(ctx, "/api/v1/calculate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CalculationsClient) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var out Run
	if err := c.client.get(ctx, "/api/v1/runs/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRun removes a stored run and its exported files.
func (c *CalculationsClient) DeleteRun(ctx context.Context, id uuid.UUID) error {
	return c.client.do(ctx, http.MethodDelete, "/api/v1/runs/"+id.String(), nil, nil)
}

func (c *CalculationsClient) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	var resp struct {
		Runs []Run `json:"runs"`
	}
	path := fmt.Sprintf("/api/v1/runs?limit=%d&offset=%d", limit, offset)
	if err := c.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}
