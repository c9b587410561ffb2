package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/findfoci/internal/export"
	"github.com/banshee-data/findfoci/internal/pipeline"
	"github.com/banshee-data/findfoci/internal/results"
)

// outputs writes the files requested on the command line for each result.
type outputs struct {
	dir       string
	name      string
	histogram bool
	scatter   bool
	labels    bool
	// stdout receives the table when the result's ShowTable is set.
	stdout io.Writer
	store  results.Store
}

func (o outputs) path(suffix string) string {
	return filepath.Join(o.dir, fileStem(o.name)+suffix)
}

// labelPath names the label image for slice z. Stacks get one numbered
// file per slice.
func (o outputs) labelPath(depth int) func(z int) string {
	if depth <= 1 {
		return func(int) string { return o.path("_labels.png") }
	}
	return func(z int) string { return o.path(fmt.Sprintf("_labels_%03d.png", z)) }
}

func (o outputs) write(ctx context.Context, r *pipeline.Result) error {
	if err := writeFile(o.path(".tsv"), func(w io.Writer) error {
		return export.WriteTSV(w, r.Foci)
	}); err != nil {
		return err
	}
	if r.Params.ShowTable && o.stdout != nil {
		if err := export.WriteTSV(o.stdout, r.Foci); err != nil {
			return err
		}
	}

	if o.histogram && len(r.Foci) > 0 {
		if err := export.SaveHistogramPNG(o.path("_hist.png"), r.Foci, 0); err != nil {
			return err
		}
	}
	if o.scatter && len(r.Foci) > 0 {
		if err := writeFile(o.path("_foci.html"), func(w io.Writer) error {
			return export.WriteScatterHTML(w, o.name, r.Foci)
		}); err != nil {
			return err
		}
	}
	if o.labels {
		if r.Labels == nil {
			log.Printf("no label map: mask method is %s", r.Params.MaskMethod)
		} else if err := export.SaveLabels(r.Labels, o.labelPath(r.Labels.Depth)); err != nil {
			return err
		}
	}

	if o.store != nil {
		saved, err := o.store.Save(ctx, o.name, results.Run{
			Params:     r.Params,
			Foci:       r.Foci,
			Background: r.Background,
			Truncated:  r.Truncated,
		})
		if err != nil {
			return fmt.Errorf("failed to store result set: %w", err)
		}
		log.Printf("stored %d foci as %q (run %s)", len(saved.Foci), o.name, saved.ID)
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// maxStemLen keeps the longest output name, a numbered label slice, within
// 128 bytes.
const maxStemLen = 128 - len("_labels_000.png")

// fileStem turns a result set name into the stem shared by its output
// files. Runs of anything but ASCII letters, digits, dot, dash and
// underscore become one underscore; leading and trailing dots and
// underscores are dropped so the stem can never name a parent directory.
func fileStem(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return !stemRune(r) })
	stem := strings.Trim(strings.Join(parts, "_"), "._")
	if len(stem) > maxStemLen {
		stem = strings.TrimRight(stem[:maxStemLen], "._")
	}
	if stem == "" {
		return "foci"
	}
	return stem
}

func stemRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return r == '.' || r == '-' || r == '_'
}
