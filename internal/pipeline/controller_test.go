package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/raster"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns a 32x32 image with four Gaussian spots of different size
// and height on a flat offset.
func blobs(t *testing.T, offset float64) *raster.Stack {
	t.Helper()
	const w, h = 32, 32
	spots := []struct{ x, y, amp, sigma float64 }{
		{8, 8, 100, 2},
		{22, 9, 60, 1.5},
		{14, 22, 80, 2.5},
		{24, 24, 30, 1},
	}
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := offset
			for _, s := range spots {
				dx, dy := float64(x)-s.x, float64(y)-s.y
				v += s.amp * math.Exp(-(dx*dx+dy*dy)/(2*s.sigma*s.sigma))
			}
			data[y*w+x] = float32(v)
		}
	}
	img, err := raster.FromSlice(w, h, 1, data)
	require.NoError(t, err)
	return img
}

// countingStages wraps the real processor and counts calls per stage.
type countingStages struct {
	*findfoci.Processor
	mu     sync.Mutex
	counts map[string]int
	failAt string
}

func newCountingStages() *countingStages {
	return &countingStages{Processor: findfoci.NewProcessor(), counts: map[string]int{}}
}

var errInjected = errors.New("injected")

func (s *countingStages) hit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
	if s.failAt == name {
		return errInjected
	}
	return nil
}

func (s *countingStages) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

func (s *countingStages) Blur(img *raster.Stack, sigma float64) (*raster.Stack, error) {
	if err := s.hit("blur"); err != nil {
		return nil, err
	}
	return s.Processor.Blur(img, sigma)
}

func (s *countingStages) Init(o, b *raster.Stack, m *raster.Mask, p findfoci.Params) (*findfoci.InitState, error) {
	if err := s.hit("init"); err != nil {
		return nil, err
	}
	return s.Processor.Init(o, b, m, p)
}

func (s *countingStages) Search(w *findfoci.WorkState, p findfoci.Params) (*findfoci.SearchState, error) {
	if err := s.hit("search"); err != nil {
		return nil, err
	}
	return s.Processor.Search(w, p)
}

func (s *countingStages) MergeByHeight(i *findfoci.InitState, st *findfoci.SearchState, p findfoci.Params) (*findfoci.MergeState, error) {
	if err := s.hit("height"); err != nil {
		return nil, err
	}
	return s.Processor.MergeByHeight(i, st, p)
}

func (s *countingStages) MergeBySize(i *findfoci.InitState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.MergeState, error) {
	if err := s.hit("size"); err != nil {
		return nil, err
	}
	return s.Processor.MergeBySize(i, m, p)
}

func (s *countingStages) MergeFinal(w *findfoci.WorkState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.MergeState, error) {
	if err := s.hit("final"); err != nil {
		return nil, err
	}
	return s.Processor.MergeFinal(w, m, p)
}

func (s *countingStages) Results(i *findfoci.InitState, m *findfoci.MergeState, p findfoci.Params) (*findfoci.ResultSet, error) {
	if err := s.hit("results"); err != nil {
		return nil, err
	}
	return s.Processor.Results(i, m, p)
}

func (s *countingStages) MaskResults(i *findfoci.InitState, m *findfoci.MergeState, r *findfoci.ResultSet, p findfoci.Params) (*findfoci.MaskResult, error) {
	if err := s.hit("mask"); err != nil {
		return nil, err
	}
	return s.Processor.MaskResults(i, m, r, p)
}

func baseParams() findfoci.Params {
	p := findfoci.DefaultParams()
	p.MinSize = 1
	return p
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Notify(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Kind
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func TestController_ResumesAtMergeSize(t *testing.T) {
	t.Parallel()
	stages := newCountingStages()
	c := NewController(stages, nil)
	c.SetSource(blobs(t, 5), nil)

	a := baseParams()
	ra, err := c.Run(context.Background(), a)
	require.NoError(t, err)
	require.NotEmpty(t, ra.Foci)
	assert.Equal(t, StageInitial, ra.Resumed)

	b := a
	b.MinSize = 5
	assert.Equal(t, StageMergeSize, Diff(b, c.Snapshot()))

	rb, err := c.Run(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, StageMergeSize, rb.Resumed)

	want := map[string]int{
		"blur": 1, "init": 1, "search": 1, "height": 1,
		"size": 2, "final": 2, "results": 2, "mask": 2,
	}
	if diff := cmp.Diff(want, stages.snapshot()); diff != "" {
		t.Errorf("stage calls mismatch (-want +got):\n%s", diff)
	}

	// The incremental result matches a cold run with the same parameters.
	fresh := NewController(nil, nil)
	fresh.SetSource(blobs(t, 5), nil)
	rf, err := fresh.Run(context.Background(), b)
	require.NoError(t, err)
	if diff := cmp.Diff(rf.Foci, rb.Foci); diff != "" {
		t.Errorf("incremental result differs from full run:\n%s", diff)
	}
	assert.Equal(t, rf.Labels, rb.Labels)
}

func TestController_UnchangedParamsRunNothing(t *testing.T) {
	t.Parallel()
	stages := newCountingStages()
	c := NewController(stages, nil)
	c.SetSource(blobs(t, 5), nil)

	p := baseParams()
	_, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	before := stages.snapshot()

	r, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageComplete, r.Resumed)

	p.ShowLogMessages = true
	r, err = c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageComplete, r.Resumed)
	assert.True(t, c.Snapshot().Params.ShowLogMessages, "ignorable change still becomes the previous set")
	assert.Equal(t, before, stages.snapshot())
}

func TestController_FailureKeepsCache(t *testing.T) {
	t.Parallel()
	stages := newCountingStages()
	rec := &recorder{}
	n := &Notifier{}
	n.Add(rec)
	c := NewController(stages, n)
	c.SetSource(blobs(t, 5), nil)

	a := baseParams()
	ra, err := c.Run(context.Background(), a)
	require.NoError(t, err)

	b := a
	b.MinSize = 5
	stages.failAt = "size"
	rec.reset()
	_, err = c.Run(context.Background(), b)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, []Kind{Running, BackgroundLevel, Failed}, rec.kinds())
	assert.Same(t, ra, c.Last())
	assert.Equal(t, a, c.Snapshot().Params)

	stages.failAt = ""
	rb, err := c.Run(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, StageMergeSize, rb.Resumed, "baseline survives the failed run")
	assert.Equal(t, 1, stages.snapshot()["search"])
}

func TestController_StageFailureFromProcessor(t *testing.T) {
	t.Parallel()
	c := NewController(nil, nil)
	mask := raster.NewMask(32, 32, 1) // empty
	c.SetSource(blobs(t, 5), mask)
	_, err := c.Run(context.Background(), baseParams())
	assert.ErrorIs(t, err, findfoci.ErrStageFailed)
	assert.Nil(t, c.Last())
	assert.Nil(t, c.Snapshot())
}

func TestController_SetSourceForcesInitial(t *testing.T) {
	t.Parallel()
	stages := newCountingStages()
	c := NewController(stages, nil)
	c.SetSource(blobs(t, 5), nil)
	p := baseParams()
	_, err := c.Run(context.Background(), p)
	require.NoError(t, err)

	c.SetSource(blobs(t, 8), nil)
	r, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageInitial, r.Resumed)
	assert.Equal(t, 2, stages.snapshot()["blur"])

	r, err = c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageComplete, r.Resumed)
}

func TestController_Notifications(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := &Notifier{}
	n.Add(rec)
	c := NewController(nil, n)
	c.SetSource(blobs(t, 5), nil)

	p := baseParams()
	r, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []Kind{Running, BackgroundLevel, SortIndexOk, Done}, rec.kinds())
	assert.Equal(t, r.Background, rec.msgs[1].Value)
	assert.Same(t, r, rec.msgs[3].Result)

	rec.reset()
	_, err = c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []Kind{Done}, rec.kinds())
}

func TestController_NegativeValuesWarnForIntensitySort(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := &Notifier{}
	n.Add(rec)
	c := NewController(nil, n)
	c.SetSource(blobs(t, -20), nil)

	p := baseParams()
	p.SortIndex = findfoci.SortIntensity
	_, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, rec.kinds(), SortIndexSensitiveToNegativeValues)

	rec.reset()
	p.SortIndex = findfoci.SortMaxValue
	r, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageCalculateResults, r.Resumed)
	assert.Contains(t, rec.kinds(), SortIndexOk)
}

func TestController_MaskStage(t *testing.T) {
	t.Parallel()
	stages := newCountingStages()
	c := NewController(stages, nil)
	c.SetSource(blobs(t, 5), nil)

	p := baseParams()
	p.MaskMethod = findfoci.MaskNone
	r, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, r.Labels)
	assert.Zero(t, stages.snapshot()["mask"])

	p.MaskMethod = findfoci.MaskPeaks
	r, err = c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageCalculateOutputMask, r.Resumed)
	require.NotNil(t, r.Labels)
	assert.Equal(t, 1, stages.snapshot()["results"])
	assert.Equal(t, 1, stages.snapshot()["mask"])

	p.ShowTable = !p.ShowTable
	r, err = c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StageShowResults, r.Resumed)
	assert.NotNil(t, r.Labels)
	assert.Equal(t, 1, stages.snapshot()["mask"])
}

func TestController_NoSource(t *testing.T) {
	t.Parallel()
	_, err := NewController(nil, nil).Run(context.Background(), baseParams())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestController_CancelledContext(t *testing.T) {
	t.Parallel()
	c := NewController(nil, nil)
	c.SetSource(blobs(t, 5), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx, baseParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, c.Last())
}
