// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/backwalk/procmaps"
	"go.opentelemetry.io/backwalk/symtab"
)

type modulesCmd struct {
	out io.Writer

	// User-specified command line arguments.
	symbols bool
}

func newModulesCmd(out io.Writer) *ffcli.Command {
	cmd := &modulesCmd{out: out}

	set := flag.NewFlagSet("modules", flag.ExitOnError)
	set.BoolVar(&cmd.symbols, "symbols", false, "Count the ELF symbols of every module")
	set.String("config", "", "Config file with flag values")

	return &ffcli.Command{
		Name:       "modules",
		ShortUsage: "modules [flags]",
		ShortHelp:  "List the executable mappings frames are attributed to",
		FlagSet:    set,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *modulesCmd) exec(context.Context, []string) error {
	mappings, err := procmaps.ReadSelf()
	if err != nil {
		return fmt.Errorf("failed to read mappings: %w", err)
	}
	return cmd.print(procmaps.NewModules(mappings), symtab.Open)
}

func (cmd *modulesCmd) print(modules *procmaps.Modules,
	open func(string) (*symtab.Table, error)) error {
	var err error
	modules.ForEach(func(m procmaps.Module) {
		if err != nil {
			return
		}
		line := fmt.Sprintf("%016x-%016x base %016x %s",
			m.Mapping.Vaddr, m.Mapping.End(), m.Base, m.Path)
		if cmd.symbols && !m.Mapping.IsVDSO() {
			t, openErr := open(m.Path)
			if openErr != nil {
				log.Warnf("Failed to read symbols of %s: %v", m.Path, openErr)
			}
			line += fmt.Sprintf(" (%d symbols)", t.Len())
		}
		_, err = fmt.Fprintln(cmd.out, line)
	})
	return err
}
