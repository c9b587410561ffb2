package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/raster"
)

// ErrNoSource is returned by Run before SetSource has been called.
var ErrNoSource = errors.New("no source image")

// Stages is the processor driven by a Controller. *findfoci.Processor
// implements it.
type Stages interface {
	Blur(img *raster.Stack, sigma float64) (*raster.Stack, error)
	Init(original, blurred *raster.Stack, mask *raster.Mask, p findfoci.Params) (*findfoci.InitState, error)
	Search(w *findfoci.WorkState, p findfoci.Params) (*findfoci.SearchState, error)
	MergeByHeight(init *findfoci.InitState, s *findfoci.SearchState, p findfoci.Params) (*findfoci.MergeState, error)
	MergeBySize(init *findfoci.InitState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.MergeState, error)
	MergeFinal(w *findfoci.WorkState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.MergeState, error)
	Results(init *findfoci.InitState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.ResultSet, error)
	MaskResults(init *findfoci.InitState, m *findfoci.MergeState, prelim *findfoci.ResultSet, p findfoci.Params) (*findfoci.MaskResult, error)
}

// Result is the terminal output of a run.
type Result struct {
	Params     findfoci.Params
	Stats      findfoci.Statistics
	Histogram  *findfoci.Histogram
	Foci       findfoci.FociList
	Background float64
	Truncated  bool
	// Labels is the painted focus map; nil when MaskMethod is none.
	Labels *findfoci.LabelMap
	// Resumed is the stage the run started from.
	Resumed Stage
}

// stageCache holds the output of every stage of one run. Work states are
// owned by the cache while it is current and recycled once replaced.
type stageCache struct {
	blurred    *raster.Stack
	init       *findfoci.InitState
	searchWork *findfoci.WorkState
	search     *findfoci.SearchState
	height     *findfoci.MergeState
	size       *findfoci.MergeState
	finalWork  *findfoci.WorkState
	final      *findfoci.MergeState
	results    *findfoci.ResultSet
	mask       *findfoci.MaskResult
}

// maxSpares bounds the recycled work buffers; a run needs at most two.
const maxSpares = 2

// Controller caches the stage outputs of the last successful run and
// resumes later runs at the earliest invalidated stage. Run is not safe
// for concurrent use; SetSource, Last and Snapshot may be called from any
// goroutine.
type Controller struct {
	stages   Stages
	notifier *Notifier

	srcMu      sync.Mutex
	image      *raster.Stack
	mask       *raster.Mask
	srcChanged bool

	// resMu guards last and result. Run is their only writer, so it reads
	// them without the lock.
	resMu  sync.Mutex
	last   *Snapshot
	result *Result

	cache  stageCache
	spares []*findfoci.WorkState
}

// NewController returns a Controller driving stages. notifier may be nil.
func NewController(stages Stages, notifier *Notifier) *Controller {
	if stages == nil {
		stages = findfoci.NewProcessor()
	}
	return &Controller{stages: stages, notifier: notifier}
}

// SetSource replaces the image and optional mask. The next run starts from
// StageInitial.
func (c *Controller) SetSource(img *raster.Stack, mask *raster.Mask) {
	c.srcMu.Lock()
	c.image, c.mask = img, mask
	c.srcChanged = true
	c.srcMu.Unlock()
}

// Last returns the result of the last successful run, or nil. The result
// is shared and must not be modified.
func (c *Controller) Last() *Result {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.result
}

// Snapshot returns what the next Diff will be compared against, or nil.
func (c *Controller) Snapshot() *Snapshot {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.last
}

func (c *Controller) commit(last *Snapshot, result *Result) {
	c.resMu.Lock()
	c.last, c.result = last, result
	c.resMu.Unlock()
}

func (c *Controller) takeSpare() *findfoci.WorkState {
	n := len(c.spares)
	if n == 0 {
		return nil
	}
	w := c.spares[n-1]
	c.spares = c.spares[:n-1]
	return w
}

func (c *Controller) recycle(ws ...*findfoci.WorkState) {
	for _, w := range ws {
		if w != nil && len(c.spares) < maxSpares {
			c.spares = append(c.spares, w)
		}
	}
}

// Run processes params, recomputing only the stages invalidated since the
// last successful run. On failure the cached state is left untouched and
// the error wraps findfoci.ErrStageFailed (or ctx.Err() when cancelled
// between stages).
func (c *Controller) Run(ctx context.Context, params findfoci.Params) (*Result, error) {
	c.srcMu.Lock()
	img, mask, changed := c.image, c.mask, c.srcChanged
	c.srcMu.Unlock()
	if img == nil {
		return nil, ErrNoSource
	}

	start := Diff(params, c.last)
	if changed {
		start = StageInitial
	}
	diagf("run: resume at %s", start)

	if start == StageComplete {
		r := *c.result
		r.Params = params
		r.Resumed = StageComplete
		c.commit(&Snapshot{Params: params, ResultCount: c.last.ResultCount}, &r)
		c.notifier.emit(Message{Kind: Done, Result: &r})
		return &r, nil
	}

	c.notifier.emit(Message{Kind: Running})
	next := c.cache
	var fresh []*findfoci.WorkState
	fail := func(stage Stage, err error) (*Result, error) {
		c.recycle(fresh...)
		err = fmt.Errorf("%s: %w", stage, err)
		opsf("run failed: %v", err)
		c.notifier.emit(Message{Kind: Failed, Err: err})
		return nil, err
	}
	step := func(stage Stage, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t0 := time.Now()
		err := fn()
		tracef("%s took %v", stage, time.Since(t0))
		return err
	}

	if start <= StageInitial {
		if err := step(StageInitial, func() (err error) {
			next.blurred, err = c.stages.Blur(img, params.GaussianBlur)
			return err
		}); err != nil {
			return fail(StageInitial, err)
		}
	}
	if start <= StageFindMaxima {
		if err := step(StageFindMaxima, func() (err error) {
			next.init, err = c.stages.Init(img, next.blurred, mask, params)
			return err
		}); err != nil {
			return fail(StageFindMaxima, err)
		}
	}
	c.notifier.emit(Message{Kind: BackgroundLevel, Value: next.init.Background()})

	if start <= StageSearch {
		if err := step(StageSearch, func() (err error) {
			w := next.init.CopyForStagedProcessing(c.takeSpare())
			fresh = append(fresh, w)
			next.searchWork = w
			next.search, err = c.stages.Search(w, params)
			return err
		}); err != nil {
			return fail(StageSearch, err)
		}
	}
	if start <= StageMergeHeight {
		if err := step(StageMergeHeight, func() (err error) {
			next.height, err = c.stages.MergeByHeight(next.searchWork.View(), next.search, params)
			return err
		}); err != nil {
			return fail(StageMergeHeight, err)
		}
	}
	if start <= StageMergeSize {
		if err := step(StageMergeSize, func() (err error) {
			next.size, err = c.stages.MergeBySize(next.searchWork.View(), next.height, params)
			return err
		}); err != nil {
			return fail(StageMergeSize, err)
		}
	}
	if start <= StageMergeSaddle {
		if err := step(StageMergeSaddle, func() (err error) {
			w := next.searchWork.View().CopyForStagedProcessing(c.takeSpare())
			fresh = append(fresh, w)
			next.finalWork = w
			next.final, err = c.stages.MergeFinal(w, next.size, params)
			return err
		}); err != nil {
			return fail(StageMergeSaddle, err)
		}
	}
	if start <= StageCalculateResults {
		if err := step(StageCalculateResults, func() (err error) {
			next.results, err = c.stages.Results(next.finalWork.View(), next.final, params)
			return err
		}); err != nil {
			return fail(StageCalculateResults, err)
		}
	}
	kind := SortIndexOk
	if next.results.NegativeValues && params.SortIndex.SensitiveToNegativeValues() {
		kind = SortIndexSensitiveToNegativeValues
	}
	c.notifier.emit(Message{Kind: kind, SortIndex: params.SortIndex})

	if start <= StageCalculateOutputMask {
		next.mask = nil
		if params.MaskMethod != findfoci.MaskNone {
			if err := step(StageCalculateOutputMask, func() (err error) {
				next.mask, err = c.stages.MaskResults(next.finalWork.View(), next.final, next.results, params)
				return err
			}); err != nil {
				return fail(StageCalculateOutputMask, err)
			}
		}
	}

	// Commit. Work buffers no longer referenced by the cache are recycled.
	if c.cache.searchWork != nil && c.cache.searchWork != next.searchWork {
		c.recycle(c.cache.searchWork)
	}
	if c.cache.finalWork != nil && c.cache.finalWork != next.finalWork {
		c.recycle(c.cache.finalWork)
	}
	c.cache = next
	if changed {
		c.srcMu.Lock()
		if c.image == img && c.mask == mask {
			c.srcChanged = false
		}
		c.srcMu.Unlock()
	}
	result := c.buildResult(params, start)
	c.commit(&Snapshot{Params: params, ResultCount: len(next.results.Foci)}, result)
	diagf("run: %d foci (resumed at %s)", len(result.Foci), start)
	c.notifier.emit(Message{Kind: Done, Result: result})
	return result, nil
}

func (c *Controller) buildResult(params findfoci.Params, start Stage) *Result {
	r := &Result{
		Params:     params,
		Stats:      c.cache.init.Stats(),
		Histogram:  c.cache.init.Histogram(),
		Foci:       c.cache.results.Foci,
		Background: c.cache.results.Background,
		Truncated:  c.cache.results.Truncated,
		Resumed:    start,
	}
	if c.cache.mask != nil {
		r.Labels = c.cache.mask.Labels
	}
	return r
}
