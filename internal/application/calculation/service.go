// Package calculation runs descriptor calculations over batches of input
// molecules and fans the results out to the configured sinks.
package calculation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/descriptor/catalog"
	"github.com/turtacn/moldesc/internal/domain/molecule"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/pkg/errors"
)

type (
	Run = run.Run
	Row = run.Row
)

// Format names how Request.Inputs are encoded.
type Format string

const (
	FormatSMILES   Format = "smiles"
	FormatMolBlock Format = "molblock"
	// FormatSDF inputs are SD file texts; every record becomes one row.
	FormatSDF Format = "sdf"
)

// Request is one batch calculation.
type Request struct {
	// Descriptors in the {name, args} JSON form. Empty selects the
	// configured default modules.
	Descriptors []map[string]any `json:"descriptors,omitempty"`
	Inputs      []string         `json:"inputs"`
	Format      Format           `json:"format,omitempty"`
	// ConfID overrides the configured conformer id.
	ConfID *int `json:"conf_id,omitempty"`
	NProc  int  `json:"nproc,omitempty"`
	// ExplicitHydrogens overrides the configured hydrogen handling.
	ExplicitHydrogens *bool `json:"explicit_hydrogens,omitempty"`
	// Export writes the run to object storage when an exporter is set.
	Export bool `json:"export,omitempty"`
	// RequestID is echoed on the completion event.
	RequestID string `json:"request_id,omitempty"`
}

// Cache stores calculated rows across runs and read-through copies of
// stored runs.
type Cache interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, items map[string]interface{}, ttl time.Duration) error
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Exporter writes a finished run to object storage.
type Exporter interface {
	Export(ctx context.Context, r *run.Run) (*run.Export, error)
	Remove(ctx context.Context, id uuid.UUID) (int, error)
}

const purgeTimeout = 10 * time.Second

// Publisher streams a finished run.
type Publisher interface {
	PublishRunFor(ctx context.Context, r *run.Run, requestID string) error
}

// Service is the batch calculation use case. Every sink is optional.
type Service struct {
	cfg          atomic.Pointer[config.CalculatorConfig]
	maxMolecules int
	cache        Cache
	cacheTTL     time.Duration
	store        run.Repository
	exporter     Exporter
	publisher    Publisher
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

type Option func(*Service)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.cacheTTL = c, ttl }
}

func WithStore(r run.Repository) Option {
	return func(s *Service) { s.store = r }
}

func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxMolecules bounds the molecules of one request. 0 means unbounded.
func WithMaxMolecules(n int) Option {
	return func(s *Service) { s.maxMolecules = n }
}

func NewService(cfg config.CalculatorConfig, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Service{logger: log}
	s.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconfigure replaces the engine defaults. Calls in flight keep the
// configuration they started with. When the default descriptor set changes,
// the cached rows of the retired set are purged.
func (s *Service) Reconfigure(cfg config.CalculatorConfig) {
	old := s.cfg.Swap(&cfg)
	s.logger.Info("Calculator defaults updated",
		logging.Int("nproc", cfg.NProc),
		logging.Int("conf_id", cfg.ConfID),
		logging.Strings("modules", cfg.Modules))
	if s.cache == nil || old == nil {
		return
	}
	prev, err := s.defaultSetDigest(*old)
	if err != nil {
		return
	}
	next, err := s.defaultSetDigest(cfg)
	if err == nil && next == prev {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	n, err := s.cache.DeleteByPrefix(ctx, rowPrefix(prev))
	if err != nil {
		s.logger.Warn("Failed to purge retired descriptor set", logging.Err(err))
		return
	}
	s.logger.Info("Purged retired descriptor set", logging.Int64("rows", n))
}

func (s *Service) defaultSetDigest(cfg config.CalculatorConfig) (string, error) {
	calc, err := s.calculator(Request{}, cfg)
	if err != nil {
		return "", err
	}
	set, err := descriptorSetKey(calc, cfg.ConfID, cfg.ExplicitHydrogens)
	if err != nil {
		return "", err
	}
	return digest(set), nil
}

// input is one molecule to calculate, or the reason it could not be read.
type input struct {
	text string
	mol  molecule.Molecule
	err  error
}

// Calculate evaluates req and returns the finished run. Molecules that fail
// to parse become rows with ParseError set; they never fail the call. Cache
// failures are logged and ignored; store, export and publish failures are
// returned.
func (s *Service) Calculate(ctx context.Context, req Request) (r *Run, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			prometheus.RecordRun(s.metrics, err, time.Since(start))
		}
	}()

	inputs, err := s.readInputs(req)
	if err != nil {
		return nil, err
	}
	cfg := *s.cfg.Load()
	calc, err := s.calculator(req, cfg)
	if err != nil {
		return nil, err
	}
	confID := cfg.ConfID
	if req.ConfID != nil {
		confID = *req.ConfID
	}
	explicitH := cfg.ExplicitHydrogens
	if req.ExplicitHydrogens != nil {
		explicitH = *req.ExplicitHydrogens
	}

	columns := make([]string, 0, calc.Len())
	for _, d := range calc.Descriptors() {
		columns = append(columns, d.String())
	}
	r = run.New(columns)
	r.Rows = make([]run.Row, len(inputs))
	log := s.logger.With(logging.String("run_id", r.ID.String()))

	setKey, err := descriptorSetKey(calc, confID, explicitH)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(inputs))
	for i, in := range inputs {
		keys[i] = CacheKey(setKey, in.text)
	}
	cached := s.lookup(ctx, keys, inputs, log)

	var (
		mols    []molecule.Molecule
		pending []int
	)
	for i, in := range inputs {
		switch {
		case in.err != nil:
			r.Rows[i] = run.ParseFailure(i, in.text, in.err, len(columns))
		case cached[i] != nil:
			row := *cached[i]
			row.Index, row.Input, row.Cached = i, in.text, true
			r.Rows[i] = row
		default:
			mol := in.mol
			if explicitH {
				g, hErr := molecule.AddHs(mol)
				if hErr != nil {
					r.Rows[i] = run.ParseFailure(i, in.text, hErr, len(columns))
					continue
				}
				mol = g
			}
			mols = append(mols, mol)
			pending = append(pending, i)
		}
	}

	if len(mols) > 0 {
		nproc := req.NProc
		if nproc <= 0 {
			nproc = cfg.NProc
		}
		items, mapErr := calc.MapAll(ctx, mols,
			descriptor.WithNProc(nproc),
			descriptor.WithConfID(confID),
			descriptor.Quiet(cfg.Quiet))
		if mapErr != nil {
			return nil, errors.Wrap(mapErr, errors.ErrCodeTimeout, "calculation interrupted")
		}
		fresh := make(map[string]interface{}, len(items))
		for _, it := range items {
			i := pending[it.Index]
			row := run.RowFromResult(i, inputs[i].text, it.Result)
			if row.Name == "" {
				row.Name = inputs[i].mol.Name()
			}
			r.Rows[i] = row
			fresh[keys[i]] = row
		}
		s.remember(ctx, fresh, log)
	}
	r.Finish()

	stats := r.Stats()
	log.Info("Calculated run",
		logging.Int("molecules", stats.Molecules),
		logging.Int("cached", stats.Cached),
		logging.Int("parse_errors", stats.ParseErrors),
		logging.Int("descriptors", len(columns)),
		logging.Duration("duration", r.Duration))

	if err := s.deliver(ctx, r, req); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) readInputs(req Request) ([]input, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no input molecules")
	}
	var out []input
	switch req.Format {
	case "", FormatSMILES:
		out = make([]input, len(req.Inputs))
		for i, text := range req.Inputs {
			text = strings.TrimSpace(text)
			g, err := molecule.FromSMILES(text)
			out[i] = input{text: text, err: err}
			if err == nil {
				out[i].mol = g
			}
		}
	case FormatMolBlock:
		out = make([]input, len(req.Inputs))
		for i, text := range req.Inputs {
			out[i] = molBlockInput(text)
		}
	case FormatSDF:
		for _, text := range req.Inputs {
			for _, rec := range molecule.SplitSDF(text) {
				out = append(out, molBlockInput(rec))
			}
		}
		if len(out) == 0 {
			return nil, errors.New(errors.ErrCodeEmptyInput, "no SD records in input")
		}
	default:
		return nil, errors.InvalidParam("unknown input format").WithDetail(string(req.Format))
	}
	if s.maxMolecules > 0 && len(out) > s.maxMolecules {
		return nil, errors.Newf(errors.ErrCodeTooManyMolecule, "%d molecules exceed the limit of %d", len(out), s.maxMolecules)
	}
	return out, nil
}

func molBlockInput(text string) input {
	g, err := molecule.FromMolBlock(text)
	if err != nil {
		return input{text: text, err: err}
	}
	return input{text: text, mol: g}
}

func (s *Service) calculator(req Request, cfg config.CalculatorConfig) (*descriptor.Calculator, error) {
	opts := []descriptor.Option{descriptor.WithLogger(s.logger.Named("calculator"))}
	if s.metrics != nil {
		opts = append(opts, descriptor.WithObserver(prometheus.NewEngineMetrics(s.metrics)))
	}
	if len(req.Descriptors) > 0 {
		return catalog.CalculatorFromJSON(req.Descriptors, opts...)
	}
	ds, err := DefaultDescriptors(cfg.Modules)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(ds)+len(opts))
	for _, d := range ds {
		items = append(items, d)
	}
	for _, o := range opts {
		items = append(items, o)
	}
	return descriptor.NewCalculator(items...)
}

// DefaultDescriptors returns the presets of the named catalog modules, or of
// every module when names is empty.
func DefaultDescriptors(names []string) ([]descriptor.Descriptor, error) {
	if len(names) == 0 {
		return catalog.All(), nil
	}
	var out []descriptor.Descriptor
	for _, name := range names {
		m, ok := catalog.Module(name)
		if !ok {
			return nil, errors.InvalidParam("unknown descriptor module").WithDetail(name)
		}
		ds, err := descriptor.DescriptorsFromModule(m, true)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

// descriptorSetKey fingerprints everything besides the input that shapes a
// row.
func descriptorSetKey(calc *descriptor.Calculator, confID int, explicitH bool) (string, error) {
	data, err := json.Marshal(struct {
		Descriptors []map[string]any `json:"descriptors"`
		ConfID      int              `json:"conf_id"`
		ExplicitH   bool             `json:"explicit_h"`
	}{calc.ToJSON(), confID, explicitH})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode descriptor set")
	}
	return string(data), nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// rowPrefix is shared by every cached row of the set with the given digest.
func rowPrefix(setDigest string) string {
	return "row:" + setDigest + ":"
}

// CacheKey is the result cache key of input under a descriptor set.
func CacheKey(set, input string) string {
	return rowPrefix(digest(set)) + digest(input)
}

func runCacheKey(id uuid.UUID) string {
	return "run:" + id.String()
}

// lookup returns the cached row of each parsed input, or nil.
func (s *Service) lookup(ctx context.Context, keys []string, inputs []input, log logging.Logger) []*run.Row {
	out := make([]*run.Row, len(inputs))
	if s.cache == nil {
		return out
	}
	var want []string
	for i, in := range inputs {
		if in.err == nil {
			want = append(want, keys[i])
		}
	}
	if len(want) == 0 {
		return out
	}
	found, err := s.cache.MGet(ctx, want)
	if err != nil {
		log.Warn("Result cache lookup failed", logging.Err(err))
		return out
	}
	hits := 0
	for i, k := range keys {
		data, ok := found[k]
		if !ok || inputs[i].err != nil {
			continue
		}
		var row run.Row
		if err := json.Unmarshal(data, &row); err != nil {
			log.Warn("Discarding corrupt cached row", logging.String("key", k), logging.Err(err))
			continue
		}
		out[i] = &row
		hits++
	}
	if s.metrics != nil {
		prometheus.RecordCacheAccess(s.metrics, "redis", hits, len(want)-hits)
	}
	return out
}

func (s *Service) remember(ctx context.Context, fresh map[string]interface{}, log logging.Logger) {
	if s.cache == nil || len(fresh) == 0 {
		return
	}
	if err := s.cache.MSet(ctx, fresh, s.cacheTTL); err != nil {
		log.Warn("Result cache write failed", logging.Err(err))
	}
}

func (s *Service) deliver(ctx context.Context, r *run.Run, req Request) error {
	if s.store != nil {
		if err := s.store.Save(ctx, r); err != nil {
			return err
		}
	}
	if req.Export && s.exporter != nil {
		exp, err := s.exporter.Export(ctx, r)
		if err != nil {
			return err
		}
		r.Export = exp
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRunFor(ctx, r, req.RequestID); err != nil {
			return err
		}
	}
	return nil
}

// GetRun loads a stored run. With a cache, runs and unknown ids are read
// through it; a cache outage falls back to the store.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.store == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run store is not configured")
	}
	if s.cache == nil {
		return s.store.Get(ctx, id)
	}
	var r run.Run
	err := s.cache.GetOrSet(ctx, runCacheKey(id), &r, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		got, err := s.store.Get(ctx, id)
		if errors.IsCode(err, errors.ErrCodeRunNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return got, nil
	})
	switch {
	case err == nil:
		return &r, nil
	case errors.IsCode(err, errors.ErrCodeNotFound):
		return nil, run.ErrNotFound.WithDetail(id.String())
	case errors.IsCode(err, errors.ErrCodeCacheError), errors.IsCode(err, errors.ErrCodeSerialization):
		s.logger.Warn("Run cache read failed", logging.String("run_id", id.String()), logging.Err(err))
		return s.store.Get(ctx, id)
	default:
		return nil, err
	}
}

// DeleteRun removes a stored run. Its exported objects and cached copy are
// removed too; failures there are logged and do not fail the call.
func (s *Service) DeleteRun(ctx context.Context, id uuid.UUID) error {
	if s.store == nil {
		return errors.New(errors.ErrCodeServiceUnavailable, "run store is not configured")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log := s.logger.With(logging.String("run_id", id.String()))
	if s.exporter != nil {
		if _, err := s.exporter.Remove(ctx, id); err != nil {
			log.Warn("Failed to remove run export", logging.Err(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, runCacheKey(id)); err != nil {
			log.Warn("Failed to evict cached run", logging.Err(err))
		}
	}
	log.Info("Deleted run")
	return nil
}

// ListRuns pages through stored runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	if s.store == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run store is not configured")
	}
	return s.store.List(ctx, limit, offset)
}
