package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/findfoci/internal/config"
	"github.com/banshee-data/findfoci/internal/export"
	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/raster"
	"github.com/banshee-data/findfoci/internal/results"
	"github.com/banshee-data/findfoci/internal/testutil"
)

// twoBlobs is a 16x16 image with peaks of 100 at (4,4) and 60 at (11,10).
func twoBlobs(t *testing.T) *raster.Stack {
	return testutil.BlobStack(t, 16, 16, 1,
		testutil.Blob{X: 4, Y: 4, Height: 100},
		testutil.Blob{X: 11, Y: 10, Height: 60},
	)
}

func blobParams() findfoci.Params {
	p := findfoci.DefaultParams()
	p.BackgroundMethod = findfoci.BackgroundAbsolute
	p.BackgroundParameter = 1
	p.PeakParameter = 0.1
	p.MinSize = 1
	p.MaxPeaks = 0
	return p
}

func TestRun_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	store := results.NewMemoryStore()
	var stdout bytes.Buffer
	out := outputs{
		dir: dir, name: "two blobs", histogram: true, scatter: true, labels: true,
		stdout: &stdout, store: store,
	}
	require.NoError(t, run(context.Background(), twoBlobs(t), nil, blobParams(), out, nil))

	f, err := os.Open(filepath.Join(dir, "two_blobs.tsv"))
	require.NoError(t, err)
	defer f.Close()
	foci, err := export.ReadTSV(f)
	require.NoError(t, err)
	require.Len(t, foci, 2)
	assert.Equal(t, [2]int{4, 4}, [2]int{foci[0].X, foci[0].Y})
	assert.Equal(t, [2]int{11, 10}, [2]int{foci[1].X, foci[1].Y})

	assert.Contains(t, stdout.String(), "intensity_above_background")
	for _, name := range []string{"two_blobs_hist.png", "two_blobs_foci.html", "two_blobs_labels.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	stored, err := store.Load(context.Background(), "two blobs")
	require.NoError(t, err)
	assert.Equal(t, foci, stored.Foci)
	assert.Equal(t, 1.0, stored.Background)
}

func TestRun_ShowTableOff(t *testing.T) {
	p := blobParams()
	p.ShowTable = false
	p.MaskMethod = findfoci.MaskNone
	var stdout bytes.Buffer
	out := outputs{dir: t.TempDir(), name: "quiet", labels: true, stdout: &stdout}
	require.NoError(t, run(context.Background(), twoBlobs(t), nil, p, out, nil))
	assert.Empty(t, stdout.String())
	_, err := os.Stat(filepath.Join(out.dir, "quiet_labels.png"))
	assert.True(t, os.IsNotExist(err), "no label map without a mask method")
}

func TestRun_MaskLimitsFoci(t *testing.T) {
	store := results.NewMemoryStore()
	out := outputs{dir: t.TempDir(), name: "masked", store: store}
	mask := testutil.RectMask(16, 16, 0, 0, 8, 8)
	require.NoError(t, run(context.Background(), twoBlobs(t), mask, blobParams(), out, nil))

	r, err := store.Load(context.Background(), "masked")
	require.NoError(t, err)
	require.Len(t, r.Foci, 1)
	assert.Equal(t, 4, r.Foci[0].X)
}

func TestRun_StageFailure(t *testing.T) {
	empty := raster.NewMask(16, 16, 1)
	out := outputs{dir: t.TempDir(), name: "x"}
	err := run(context.Background(), twoBlobs(t), empty, blobParams(), out, nil)
	assert.ErrorIs(t, err, findfoci.ErrStageFailed)
}

func TestRun_InvalidParams(t *testing.T) {
	p := blobParams()
	p.MinSize = -1
	err := run(context.Background(), twoBlobs(t), nil, p, outputs{dir: t.TempDir(), name: "x"}, nil)
	assert.ErrorIs(t, err, findfoci.ErrInvalidParams)
}

func TestRun_WatchRepostsChangedParams(t *testing.T) {
	dir := t.TempDir()
	paramsFile := filepath.Join(dir, "params.json")
	p := blobParams()
	require.NoError(t, config.FromParams(p).Save(paramsFile))

	store := results.NewMemoryStore()
	out := outputs{dir: dir, name: "watched", store: store}
	img := twoBlobs(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, img, nil, p, out, &watchOptions{path: paramsFile, poll: 10 * time.Millisecond})
	}()

	require.Eventually(t, func() bool {
		r, err := store.Load(context.Background(), "watched")
		return err == nil && len(r.Foci) == 2
	}, 5*time.Second, 10*time.Millisecond)

	p.MaxPeaks = 1
	require.NoError(t, config.FromParams(p).Save(paramsFile))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(paramsFile, future, future))

	require.Eventually(t, func() bool {
		r, err := store.Load(context.Background(), "watched")
		return err == nil && len(r.Foci) == 1 && r.Truncated
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestFileStem(t *testing.T) {
	tests := map[string]string{
		"cells":            "cells",
		"two blobs":        "two_blobs",
		"../../etc/passwd": "etc_passwd",
		"a//b  c":          "a_b_c",
		"":                 "foci",
		"...":              "foci",
		"run-1.v2":         "run-1.v2",
		"50% stack":        "50_stack",
		"__x__":            "x",
	}
	for in, want := range tests {
		assert.Equal(t, want, fileStem(in), "input %q", in)
	}

	long := fileStem(strings.Repeat("a", 300))
	assert.Len(t, long, maxStemLen)
	assert.LessOrEqual(t, len(long+"_labels_000.png"), 128)
}

func TestOutputs_LabelSlicesInPercentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "100%d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	img := testutil.BlobStack(t, 16, 16, 2,
		testutil.Blob{X: 4, Y: 4, Z: 0, Height: 100},
		testutil.Blob{X: 11, Y: 10, Z: 1, Height: 60},
	)
	out := outputs{dir: dir, name: "stack", labels: true}
	require.NoError(t, run(context.Background(), img, nil, blobParams(), out, nil))

	for _, name := range []string{"stack_labels_000.png", "stack_labels_001.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestLoadParams(t *testing.T) {
	p, err := loadParams("")
	require.NoError(t, err)
	assert.Equal(t, findfoci.DefaultParams(), p)

	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_size: 9\n"), 0o644))
	p, err = loadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 9, p.MinSize)
}

func TestRealMain_ClosesStoreOnFailure(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "cells.png")
	maskPath := filepath.Join(dir, "empty.png")
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(4, 4, color.Gray{Y: 200})
	require.NoError(t, imaging.Save(img, imgPath))
	require.NoError(t, imaging.Save(image.NewGray(image.Rect(0, 0, 8, 8)), maskPath))
	dbFile := filepath.Join(dir, "results.db")

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"findfoci", "-db", dbFile, "-mask", maskPath, "-out", dir, imgPath}

	assert.Equal(t, 1, realMain(), "empty mask fails the run")
	_, err := os.Stat(dbFile)
	require.NoError(t, err)
	_, err = os.Stat(dbFile + "-wal")
	assert.True(t, os.IsNotExist(err), "WAL is checkpointed and removed when the store closes")
}
