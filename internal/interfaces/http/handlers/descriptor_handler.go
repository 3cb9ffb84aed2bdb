package handlers

import (
	"net/http"
	"strings"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/descriptor/catalog"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
)

// DescriptorHandler serves the descriptor catalog and the JSON codec.
type DescriptorHandler struct {
	maxBody int64
	logger  logging.Logger
}

func NewDescriptorHandler(maxBody int64, log logging.Logger) *DescriptorHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &DescriptorHandler{maxBody: maxBody, logger: log}
}

type ListDescriptorsResponse struct {
	Descriptors []catalog.Entry `json:"descriptors"`
	Total       int             `json:"total"`
}

// List handles GET /api/v1/descriptors. ?module=a,b restricts the listing.
func (h *DescriptorHandler) List(w http.ResponseWriter, r *http.Request) {
	var modules []string
	if v := r.URL.Query().Get("module"); v != "" {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				modules = append(modules, m)
			}
		}
	}
	entries, err := catalog.Entries(modules...)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListDescriptorsResponse{Descriptors: entries, Total: len(entries)})
}

type DecodeRequest struct {
	Descriptors []map[string]any `json:"descriptors"`
}

// DecodedDescriptor is one decoded descriptor in its canonical JSON form.
type DecodedDescriptor struct {
	Name string         `json:"name"`
	JSON map[string]any `json:"json"`
}

type DecodeResponse struct {
	Descriptors []DecodedDescriptor `json:"descriptors"`
}

// Decode handles POST /api/v1/descriptors/decode. Descriptors are decoded
// into a calculator, so duplicates collapse and cycles are rejected.
func (h *DescriptorHandler) Decode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, err)
		return
	}
	calc, err := catalog.CalculatorFromJSON(req.Descriptors)
	if err != nil {
		writeAppError(w, err)
		return
	}
	resp := DecodeResponse{Descriptors: make([]DecodedDescriptor, 0, calc.Len())}
	for _, d := range calc.Descriptors() {
		resp.Descriptors = append(resp.Descriptors, DecodedDescriptor{Name: d.String(), JSON: descriptor.ToJSON(d)})
	}
	writeJSON(w, http.StatusOK, resp)
}
