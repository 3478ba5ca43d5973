// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/backwalk"
)

type walkCmd struct {
	out io.Writer

	// User-specified command line arguments.
	depth     int
	maxFrames int
	demangle  bool
	json      bool
	verbose   bool
}

func newWalkCmd(out io.Writer) *ffcli.Command {
	cmd := &walkCmd{out: out}

	set := flag.NewFlagSet("walk", flag.ExitOnError)
	set.IntVar(&cmd.depth, "depth", 0, "Number of nested calls to make before walking")
	set.IntVar(&cmd.maxFrames, "max-frames", 0, "Maximum number of frames to record (0: all)")
	set.BoolVar(&cmd.demangle, "demangle", false, "Demangle C++ and Rust symbol names")
	set.BoolVar(&cmd.json, "json", false, "Print the trace as JSON")
	set.BoolVar(&cmd.verbose, "v", false, "Enable debug logging")
	set.String("config", "", "Config file with flag values")

	return &ffcli.Command{
		Name:       "walk",
		ShortUsage: "walk [flags]",
		ShortHelp:  "Walk and print the stack of the current goroutine",
		FlagSet:    set,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

// jsonFrame is the JSON representation of one frame.
type jsonFrame struct {
	PC           string `json:"pc"`
	ModuleOffset string `json:"module_offset"`
	Module       string `json:"module"`
	Symbol       string `json:"symbol"`
}

// jsonTrace is the JSON representation of a trace.
type jsonTrace struct {
	Hash     string      `json:"hash"`
	Complete bool        `json:"complete"`
	Frames   []jsonFrame `json:"frames"`
}

func (cmd *walkCmd) exec(context.Context, []string) error {
	if cmd.depth < 0 {
		return errors.New("`-depth` must not be negative")
	}
	setVerbose(cmd.verbose)

	demangle := backwalk.NoDemangle
	if cmd.demangle {
		demangle = backwalk.Demangle
	}
	w := backwalk.New(backwalk.WithDemangler(demangle))

	trace := captureNested(w, cmd.depth, cmd.maxFrames)
	log.Debugf("Captured %d frames (complete: %v)", len(trace.Frames), trace.Complete)

	if !cmd.json {
		if err := trace.Fprint(cmd.out, demangle); err != nil {
			return fmt.Errorf("failed to print trace: %w", err)
		}
		_, err := fmt.Fprintf(cmd.out, "hash: %016x\n", trace.Hash())
		return err
	}

	out := jsonTrace{
		Hash:     fmt.Sprintf("%016x", trace.Hash()),
		Complete: trace.Complete,
		Frames:   make([]jsonFrame, 0, len(trace.Frames)),
	}
	for _, f := range trace.Frames {
		symbol := f.Symbol
		if name, ok := demangle(symbol); ok {
			symbol = name
		}
		out.Frames = append(out.Frames, jsonFrame{
			PC:           fmt.Sprintf("%#x", f.PC),
			ModuleOffset: fmt.Sprintf("%#x", f.ModuleOffset),
			Module:       f.Module,
			Symbol:       symbol,
		})
	}

	enc := json.NewEncoder(cmd.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("JSON Marshall failed: %w", err)
	}
	return nil
}

// captureNested makes depth nested calls and captures the stack in the
// innermost one.
//
//go:noinline
func captureNested(w *backwalk.Walker, depth, maxFrames int) backwalk.Trace {
	if depth > 0 {
		return captureNested(w, depth-1, maxFrames)
	}
	return w.Capture(maxFrames)
}
