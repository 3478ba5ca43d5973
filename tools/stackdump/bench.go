// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/backwalk"
	"go.opentelemetry.io/backwalk/internal/lrucache"
	"go.opentelemetry.io/backwalk/symbolize"
)

type benchCmd struct {
	out io.Writer

	// User-specified command line arguments.
	iterations int
	depth      int
	goroutines int
	verbose    bool
}

func newBenchCmd(out io.Writer) *ffcli.Command {
	cmd := &benchCmd{out: out}

	set := flag.NewFlagSet("bench", flag.ExitOnError)
	set.IntVar(&cmd.iterations, "iterations", 10000, "Number of walks per goroutine")
	set.IntVar(&cmd.depth, "depth", 16, "Number of nested calls to make before walking")
	set.IntVar(&cmd.goroutines, "goroutines", 1, "Number of goroutines walking concurrently")
	set.BoolVar(&cmd.verbose, "v", false, "Enable debug logging")
	set.String("config", "", "Config file with flag values")

	return &ffcli.Command{
		Name:       "bench",
		ShortUsage: "bench [flags]",
		ShortHelp:  "Measure the time needed for a full stack walk",
		FlagSet:    set,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

// benchResult summarizes the walks of one goroutine.
type benchResult struct {
	walks  int
	frames int
}

func (cmd *benchCmd) exec(context.Context, []string) error {
	if cmd.iterations <= 0 || cmd.goroutines <= 0 {
		return errors.New("`-iterations` and `-goroutines` must be positive")
	}
	if cmd.depth < 0 {
		return errors.New("`-depth` must not be negative")
	}
	setVerbose(cmd.verbose)

	results := make([]benchResult, cmd.goroutines)
	start := time.Now()

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runWalks(cmd.depth, cmd.iterations)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	var total benchResult
	for _, r := range results {
		total.walks += r.walks
		total.frames += r.frames
	}
	log.Debugf("Completed %d walks in %v", total.walks, elapsed)

	return writeSummary(cmd.out, total, elapsed, symbolize.Default().CacheStatistics())
}

// writeSummary prints the averages over all walks. Averages over zero walks
// or frames are reported as zero.
func writeSummary(out io.Writer, total benchResult, elapsed time.Duration,
	stats lrucache.Statistics) error {
	var framesPerWalk float64
	var perWalk, perFrame time.Duration
	if total.walks > 0 {
		framesPerWalk = float64(total.frames) / float64(total.walks)
		perWalk = elapsed / time.Duration(total.walks)
	}
	if total.frames > 0 {
		perFrame = elapsed / time.Duration(total.frames)
	}

	_, err := fmt.Fprintf(out,
		"walks: %d\nframes/walk: %.1f\ntime/walk: %v\ntime/frame: %v\n"+
			"table cache: %d hits, %d misses, %d added, %d evicted\n",
		total.walks, framesPerWalk, perWalk, perFrame,
		stats.Hit, stats.Miss, stats.Added, stats.Evicted)
	return err
}

func countFrames(_ uintptr, _, _ string, arg any) bool {
	*arg.(*int)++
	return true
}

// runWalks walks the stack iterations times, depth calls below this function.
//
//go:noinline
func runWalks(depth, iterations int) benchResult {
	if depth > 0 {
		return runWalks(depth-1, iterations)
	}
	var r benchResult
	for range iterations {
		frames := 0
		if backwalk.Traverse(countFrames, &frames) {
			r.walks++
			r.frames += frames
		}
	}
	return r
}
