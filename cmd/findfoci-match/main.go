// Command findfoci-match scores one foci result set against another.
//
// Both arguments are either tab-delimited tables written by findfoci or,
// with -db, names of stored result sets. The first set is the reference.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/findfoci/internal/export"
	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/results"
	"github.com/banshee-data/findfoci/internal/version"
)

var (
	dbPath      = flag.String("db", "", "SQLite results database to load named sets from")
	method      = flag.String("method", "assign", "Matching method: assign (greedy, reference rank order) or mutual (mutual nearest neighbours in XY)")
	maxDist     = flag.Float64("distance", 5, "Maximum match distance in pixels")
	highest     = flag.Bool("highest", false, "assign: prefer the brightest candidate in range over the closest")
	zWeight     = flag.Float64("z-weight", 1, "assign: multiplier applied to z differences")
	outPath     = flag.String("out", "", "Write the match table to this file instead of stdout")
	list        = flag.Bool("list", false, "List the stored result sets and exit (requires -db)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] reference candidate\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("findfoci-match"))
		return 0
	}

	ctx := context.Background()
	var store results.Store
	if *dbPath != "" {
		s, err := results.OpenSQLStore(*dbPath)
		if err != nil {
			log.Printf("failed to open results database: %v", err)
			return 1
		}
		defer func() {
			if err := s.Close(); err != nil {
				log.Printf("failed to close results database: %v", err)
			}
		}()
		store = s
	}

	if *list {
		if store == nil {
			log.Print("-list requires -db")
			return 2
		}
		names, err := store.Names(ctx)
		if err != nil {
			log.Printf("failed to list result sets: %v", err)
			return 1
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return 0
	}

	if flag.NArg() != 2 {
		flag.Usage()
		return 2
	}
	ref, err := loadSet(ctx, store, flag.Arg(0))
	if err != nil {
		log.Printf("failed to load reference: %v", err)
		return 1
	}
	cand, err := loadSet(ctx, store, flag.Arg(1))
	if err != nil {
		log.Printf("failed to load candidates: %v", err)
		return 1
	}

	var ms []match
	switch *method {
	case "assign":
		ms = matchAssign(ref, cand, *maxDist, *zWeight, *highest)
	case "mutual":
		if ms, err = matchMutual(ref, cand, *maxDist); err != nil {
			log.Printf("failed to pair foci: %v", err)
			return 1
		}
	default:
		log.Printf("unknown method %q", *method)
		return 1
	}

	w := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Printf("failed to create %s: %v", *outPath, err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := writeMatches(w, ms); err != nil {
		log.Printf("failed to write matches: %v", err)
		return 1
	}
	if err := writeSummary(os.Stderr, summarize(ms, len(ref), len(cand))); err != nil {
		log.Printf("failed to write summary: %v", err)
		return 1
	}
	return 0
}

// loadSet reads a .tsv file, or a stored set when store is not nil and arg
// has no .tsv extension.
func loadSet(ctx context.Context, store results.Store, arg string) (findfoci.FociList, error) {
	if store == nil || filepath.Ext(arg) == ".tsv" {
		f, err := os.Open(arg)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return export.ReadTSV(f)
	}
	run, err := store.Load(ctx, arg)
	if err != nil {
		return nil, err
	}
	return run.Foci, nil
}
