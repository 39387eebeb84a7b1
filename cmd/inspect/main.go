/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command inspect is a minimal reference consumer of pkg/inspector: it
// opens a trace file (--live always fails with a setup error, since no
// live backend is compiled into it), optionally dumps what it reads to a
// rotating trace, and
// prints every event it receives. Filter expression compilation and
// templated output formatting are out of scope for the core (see
// pkg/inspector's Filter/Formatter collaborator interfaces) so this
// command only threads those flags through without executing them.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/evgeni/sysdig/pkg/config"
	"github.com/evgeni/sysdig/pkg/cyclewriter"
	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/ilog"
	"github.com/evgeni/sysdig/pkg/inspector"
	"github.com/evgeni/sysdig/pkg/kevent"
)

var opts struct {
	configPath string
	filePath   string
	live       bool
	dumpPath   string
	dumpGzip   bool
	cycle      bool
	filterExpr string
	format     string
	replayDrop float64
	logPath    string
}

func main() {
	root := &cobra.Command{
		Use:   "inspect",
		Short: "Replay or capture syscall events and print them",
		RunE:  run,
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or .properties config file")
	flags.StringVarP(&opts.filePath, "file", "f", "", "trace file to replay")
	flags.BoolVar(&opts.live, "live", false, "capture from a live backend (requires one compiled into this binary)")
	flags.StringVarP(&opts.dumpPath, "dump", "d", "", "write every event read back out to this trace file")
	flags.BoolVar(&opts.dumpGzip, "gzip", false, "gzip-compress the dump trace")
	flags.BoolVar(&opts.cycle, "cycle", false, "rotate the dump trace per the config's cycle_writer settings instead of a single file")
	flags.StringVarP(&opts.filterExpr, "filter", "F", "", "filter expression, threaded through to the configuration but not compiled by this command")
	flags.StringVar(&opts.format, "format", "", "output formatter template, threaded through but not rendered by this command")
	flags.Float64VarP(&opts.replayDrop, "replay-drop", "r", 0, "simulate start_dropping(ratio) on a replayed trace, in (0,1]")
	flags.StringVar(&opts.logPath, "log", "", "log file path (default: stderr)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := ilog.Init(opts.logPath, logrus.InfoLevel); err != nil {
		return err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.filterExpr != "" {
		cfg.FilterExpr = opts.filterExpr
	}

	insp := inspector.New(cfg)
	defer insp.Close()

	switch {
	case opts.filePath != "":
		if err := insp.OpenFile(opts.filePath); err != nil {
			return err
		}
	case opts.live:
		// This repo ships no Backend implementation (spec §1: the raw
		// "scap" layer is an out-of-scope collaborator) - an embedder
		// wires its own via inspector.OpenLive before reaching this
		// point in a real deployment.
		return ierrors.Newf(ierrors.KindSetup, "no live backend compiled into this binary; pass --file instead")
	default:
		return ierrors.Newf(ierrors.KindSetup, "one of --file or --live is required")
	}

	if opts.dumpPath != "" {
		if opts.cycle {
			if err := insp.SetupCycleWriter(cyclewriter.Config{
				BaseName:  opts.dumpPath,
				ByteLimit: cfg.CycleWriter.RolloverMB << 20,
				Duration:  time.Duration(cfg.CycleWriter.DurationS) * time.Second,
				FileLimit: cfg.CycleWriter.FileLimit,
				DoCycle:   cfg.CycleWriter.DoCycle,
				Compress:  opts.dumpGzip || cfg.CycleWriter.Compress,
			}); err != nil {
				return err
			}
		} else if err := insp.AutodumpStart(opts.dumpPath, opts.dumpGzip); err != nil {
			return err
		}
	}

	if err := insp.StartCapture(); err != nil {
		return err
	}

	var limiter *rate.Limiter
	if opts.replayDrop > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.replayDrop*1000), 1)
	}

	for {
		e, status, err := insp.Next()
		if err != nil {
			return err
		}
		switch status {
		case inspector.StatusEof:
			return nil
		case inspector.StatusTimeout:
			continue
		}
		if limiter != nil && !limiter.Allow() {
			continue
		}
		printEvent(e)
	}
}

func printEvent(e *kevent.Kevent) {
	fmt.Printf("%d %s %s", e.Seq, e.Timestamp.Format("15:04:05.000000"), e.Type)
	for _, name := range e.Kparams.Names() {
		p, err := e.Kparams.GetParam(name)
		if err != nil {
			continue
		}
		fmt.Printf(" %s=%v", name, p.Value)
	}
	fmt.Println()
}
