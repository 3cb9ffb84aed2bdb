package minio

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/pkg/errors"
)

// Exporter writes each run as runs/<id>/result.csv and runs/<id>/run.json.
type Exporter struct {
	client        *Client
	logger        logging.Logger
	presignExpiry time.Duration
}

type ExporterOption func(*Exporter)

// WithPresignExpiry adds presigned download URLs valid for d to every
// export. 0 disables them.
func WithPresignExpiry(d time.Duration) ExporterOption {
	return func(e *Exporter) { e.presignExpiry = d }
}

func NewExporter(client *Client, log logging.Logger, opts ...ExporterOption) *Exporter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	e := &Exporter{client: client, logger: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) runPrefix(id uuid.UUID) string {
	return e.client.Key("runs", id.String()) + "/"
}

func (e *Exporter) Export(ctx context.Context, r *run.Run) (*run.Export, error) {
	csvData, err := EncodeCSV(r)
	if err != nil {
		return nil, err
	}
	jsonData, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode run")
	}

	out := &run.Export{
		CSVKey:  e.client.Key("runs", r.ID.String(), "result.csv"),
		JSONKey: e.client.Key("runs", r.ID.String(), "run.json"),
	}
	if err := e.client.Put(ctx, out.CSVKey, csvData, "text/csv"); err != nil {
		return nil, err
	}
	if err := e.client.Put(ctx, out.JSONKey, jsonData, "application/json"); err != nil {
		return nil, err
	}
	if e.presignExpiry > 0 {
		e.presign(ctx, out)
	}
	e.logger.Info("Exported run",
		logging.String("run_id", r.ID.String()),
		logging.String("bucket", e.client.Bucket()),
		logging.Int("rows", len(r.Rows)))
	return out, nil
}

// presign fills the download URLs. The objects are already uploaded, so a
// signing failure only leaves the URLs empty.
func (e *Exporter) presign(ctx context.Context, out *run.Export) {
	var err error
	if out.CSVURL, err = e.client.PresignedURL(ctx, out.CSVKey, e.presignExpiry); err != nil {
		e.logger.Warn("Failed to presign export", logging.String("key", out.CSVKey), logging.Err(err))
		return
	}
	if out.JSONURL, err = e.client.PresignedURL(ctx, out.JSONKey, e.presignExpiry); err != nil {
		out.CSVURL = ""
		e.logger.Warn("Failed to presign export", logging.String("key", out.JSONKey), logging.Err(err))
	}
}

// Remove deletes every object exported for run id and returns how many
// were removed.
func (e *Exporter) Remove(ctx context.Context, id uuid.UUID) (int, error) {
	keys, err := e.client.List(ctx, e.runPrefix(id))
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := e.client.Remove(ctx, k); err != nil {
			return i, err
		}
	}
	if len(keys) > 0 {
		e.logger.Info("Removed run export", logging.String("run_id", id.String()), logging.Int("objects", len(keys)))
	}
	return len(keys), nil
}

// EncodeCSV renders a header of input, name and the descriptor columns,
// then one line per row. Missing values are empty cells.
func EncodeCSV(r *run.Run) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"input", "name"}, r.Descriptors...)
	if err := w.Write(header); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv")
	}
	record := make([]string, len(header))
	for _, row := range r.Rows {
		record[0], record[1] = row.Input, row.Name
		for i := range r.Descriptors {
			record[i+2] = ""
			if i < len(row.Values) {
				record[i+2] = formatCell(row.Values[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv")
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
