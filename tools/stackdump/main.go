// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// stackdump walks the stack of its own goroutines with the frame pointer
// walker and prints the result. It is used to inspect what the walker sees on
// a given platform and to measure how fast it is.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	walklog "go.opentelemetry.io/backwalk/log"
	"go.opentelemetry.io/backwalk/vc"
)

// envVarPrefix is the prefix of environment variables that set flags.
const envVarPrefix = "STACKDUMP"

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})

	if err := newRootCmd().ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatalf("%v", err)
		}
	}
}

func newRootCmd() *ffcli.Command {
	var printVersion bool

	set := flag.NewFlagSet("stackdump", flag.ExitOnError)
	set.BoolVar(&printVersion, "version", false, "Show version")

	return &ffcli.Command{
		Name:       "stackdump",
		ShortUsage: "stackdump [flags] <subcommand> [flags]",
		ShortHelp:  "Tool for inspecting frame pointer stack walks",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
		Subcommands: []*ffcli.Command{
			newWalkCmd(os.Stdout),
			newBenchCmd(os.Stdout),
			newModulesCmd(os.Stdout),
		},
		Exec: func(context.Context, []string) error {
			if printVersion {
				fmt.Printf("stackdump %s (revision %s, built %s)\n",
					vc.Version(), vc.Revision(), vc.BuildTimestamp())
				return nil
			}
			return flag.ErrHelp
		},
	}
}

// commandOptions returns the ff options shared by all subcommands. Flags can
// be set from STACKDUMP_* environment variables or from a plain config file.
func commandOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	}
}

// setVerbose raises the log level of the tool and the walker.
func setVerbose(verbose bool) {
	if !verbose {
		return
	}
	log.SetLevel(log.DebugLevel)
	walklog.SetLevel(slog.LevelDebug)
}
