package descriptor

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/moldesc/internal/domain/molecule"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
)

// MapItem is one molecule's result, tagged with its input position.
type MapItem struct {
	Index  int
	Mol    molecule.Molecule
	Result Result
}

type mapConfig struct {
	nproc    int
	quiet    bool
	confID   int
	progress func(done, total int)
}

// MapOption configures Map.
type MapOption func(*mapConfig)

// WithNProc sets the number of worker goroutines; n <= 0 means NumCPU.
func WithNProc(n int) MapOption {
	return func(c *mapConfig) { c.nproc = n }
}

// Quiet suppresses progress logging and the progress callback. Results are
// unaffected.
func Quiet(q bool) MapOption {
	return func(c *mapConfig) { c.quiet = q }
}

// WithConfID selects the conformer passed to every evaluation.
func WithConfID(id int) MapOption {
	return func(c *mapConfig) { c.confID = id }
}

// WithProgress registers a callback invoked after each emitted item.
func WithProgress(fn func(done, total int)) MapOption {
	return func(c *mapConfig) { c.progress = fn }
}

// Map evaluates mols and streams the results in input order, whatever order
// the workers finish in. The channel is closed when every molecule has been
// emitted or ctx is cancelled.
func (c *Calculator) Map(ctx context.Context, mols []molecule.Molecule, opts ...MapOption) <-chan MapItem {
	cfg := mapConfig{nproc: runtime.NumCPU(), confID: -1}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.nproc <= 0 {
		cfg.nproc = runtime.NumCPU()
	}
	if cfg.nproc > len(mols) && len(mols) > 0 {
		cfg.nproc = len(mols)
	}

	out := make(chan MapItem)
	p := &progressReporter{cfg: cfg, total: len(mols), logger: c.Config.Logger}
	if cfg.nproc == 1 {
		go c.mapSerial(ctx, mols, cfg, out, p)
	} else {
		go c.mapParallel(ctx, mols, cfg, out, p)
	}
	return out
}

func (c *Calculator) mapSerial(ctx context.Context, mols []molecule.Molecule, cfg mapConfig, out chan<- MapItem, p *progressReporter) {
	defer close(out)
	for i, m := range mols {
		if ctx.Err() != nil {
			return
		}
		item := MapItem{Index: i, Mol: m, Result: c.Calculate(m, cfg.confID)}
		select {
		case out <- item:
			p.advance()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Calculator) mapParallel(ctx context.Context, mols []molecule.Molecule, cfg mapConfig, out chan<- MapItem, p *progressReporter) {
	defer close(out)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan MapItem, cfg.nproc)

	g.Go(func() error {
		defer close(jobs)
		for i := range mols {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < cfg.nproc; w++ {
		g.Go(func() error {
			c.Config.Metrics.WorkersInFlight(1)
			defer c.Config.Metrics.WorkersInFlight(-1)
			for i := range jobs {
				item := MapItem{Index: i, Mol: mols[i], Result: c.Calculate(mols[i], cfg.confID)}
				select {
				case results <- item:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	// Reorder buffer: hold items until every lower index has been emitted.
	pending := make(map[int]MapItem)
	next := 0
	for item := range results {
		pending[item.Index] = item
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			select {
			case out <- ready:
				p.advance()
				next++
			case <-ctx.Done():
				for range results {
				}
				return
			}
		}
	}
}

type progressReporter struct {
	cfg    mapConfig
	total  int
	done   int
	logger logging.Logger
}

func (p *progressReporter) advance() {
	p.done++
	if p.cfg.quiet {
		return
	}
	if p.cfg.progress != nil {
		p.cfg.progress(p.done, p.total)
	}
	step := p.total / 10
	if step == 0 {
		step = 1
	}
	if p.done%step == 0 || p.done == p.total {
		p.logger.Info("calculation progress",
			logging.Int("done", p.done),
			logging.Int("total", p.total))
	}
}

// MapAll collects Map's output. On cancellation it returns the items emitted
// so far together with the context error.
func (c *Calculator) MapAll(ctx context.Context, mols []molecule.Molecule, opts ...MapOption) ([]MapItem, error) {
	items := make([]MapItem, 0, len(mols))
	for it := range c.Map(ctx, mols, opts...) {
		items = append(items, it)
	}
	if len(items) < len(mols) {
		if err := ctx.Err(); err != nil {
			return items, err
		}
	}
	return items, nil
}
