// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"

	nl "github.com/mlnoga/colortransfer/internal"
	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/ops/xfer"
	"github.com/mlnoga/colortransfer/internal/rest"
	"github.com/mlnoga/colortransfer/internal/stats"
	"github.com/mlnoga/colortransfer/internal/transfer"
	"github.com/pbnjay/memory"
)

const version = "1.0.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var source = flag.String("source", "", "take the color distribution from image `file`")
var target = flag.String("target", "", "take the structure from image `file`")
var out = flag.String("out", "out.png", "save output to `file`. Format from suffix: .png, .jpg, .jpeg, .tif, .tiff, .bmp")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var pipeline = flag.String("pipeline", "", "run the transfer pipeline from JSON `file` instead of the flags above")

var quality = flag.Int("quality", 95, "JPEG output quality, 1..100")
var truncate = flag.Bool("truncate", false, "narrow to 8 bits by truncation instead of rounding")
var samples = flag.Int("samples", stats.DefaultSamples, "random samples per channel for median estimation in stats")
var statsOut = flag.String("statsOut", "", "export statistics reports as JSON to `file`")

var threads = flag.Int("threads", 0, "number of threads to use, 0=all CPUs")
var memoryMB = flag.Int64("memory", int64((totalMiBs*7)/10), "total MiB of memory to use for image buffers, default=0.7x physical memory, 0=no limit")

var addr = flag.String("addr", ":8080", "listen address for serve")
var chroot = flag.String("chroot", "", "serve: change root directory after binding the listen address")
var setuid = flag.Int("setuid", -1, "serve: change user ID after binding the listen address, -1=keep")

func init() {
	flag.StringVar(source, "s", "", "shorthand for -source")
	flag.StringVar(target, "t", "", "shorthand for -target")
	flag.StringVar(out, "o", "out.png", "shorthand for -out")
}

func main() {
	logWriter := nl.LogWriter()
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `colortransfer Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (transfer|stats|serve|legal|version|help) (img0 ... imgn)

Commands:
  transfer Restyle the target image with the colors of the source image (default).
           Images come from -source and -target, or from two arguments in that order
  stats    Show uniform color space statistics of the input images
  serve    Serve the REST API and upload form on -addr
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	cmd := "transfer"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	} else if *source == "" && *target == "" && *pipeline == "" {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if cmd == "transfer" && *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	c := ops.NewContext(logWriter)
	if *threads > 0 {
		runtime.GOMAXPROCS(*threads)
		c.MaxThreads = *threads
	}
	c.WorkMemoryMB = int(*memoryMB)

	// run actions
	var err error
	switch cmd {
	case "transfer":
		err = cmdTransfer(args, c)

	case "stats":
		err = cmdStats(args, c)

	case "serve":
		c.LogResources()
		err = rest.Serve(c, rest.Config{Addr: *addr, Chroot: *chroot, Setuid: *setuid, JPEGQuality: *quality})

	case "legal":
		nl.LogPrint(legal)

	case "version":
		nl.LogPrintf("Version %s on %s\n", version, ops.CPUInfo())

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", cmd)
		flag.Usage()
		nl.LogSync()
		os.Exit(1)
	}

	if cmd == "transfer" || cmd == "stats" {
		nl.LogPrintln("\nDone after", time.Since(start))
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		pprof.StopCPUProfile()
		nl.LogSync()
		os.Exit(1)
	}
	nl.LogSync()
}

// Builds the transfer pipeline from the JSON pipeline file if given,
// else from the flags and positional arguments
func transferPipeline(args []string) (*ops.OpSequence, error) {
	if *pipeline != "" {
		bs, err := os.ReadFile(*pipeline)
		if err != nil {
			return nil, err
		}
		seq := ops.NewOpSequence()
		if err := json.Unmarshal(bs, seq); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", *pipeline, err)
		}
		return seq, nil
	}

	src, tgt := *source, *target
	switch len(args) {
	case 0:
	case 2:
		src, tgt = args[0], args[1]
	default:
		return nil, fmt.Errorf("need exactly a source and a target image, got %d arguments", len(args))
	}
	if src == "" || tgt == "" {
		return nil, errors.New("need a source and a target image")
	}

	opts := transfer.Options{Narrowing: transfer.NarrowRound}
	if *truncate {
		opts.Narrowing = transfer.NarrowTruncate
	}
	return ops.NewOpSequence(
		ops.NewOpLoadFiles(src, tgt),
		xfer.NewOpTransfer(opts),
		ops.NewOpSave(*out, *quality),
	), nil
}

// Perform the color transfer command
func cmdTransfer(args []string, c *ops.Context) error {
	seq, err := transferPipeline(args)
	if err != nil {
		return err
	}
	if err := printPipeline(c.Log, "Transferring colors", seq); err != nil {
		return err
	}
	c.LogResources()
	return run(seq, c)
}

// Perform the statistics command
func cmdStats(args []string, c *ops.Context) error {
	if len(args) == 0 {
		return errors.New("need at least one image for statistics")
	}
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(args),
		xfer.NewOpStats(*samples, *statsOut),
	)
	if err := printPipeline(c.Log, "Calculating statistics", seq); err != nil {
		return err
	}
	return run(seq, c)
}

func printPipeline(w io.Writer, what string, seq *ops.OpSequence) error {
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s with these settings:\n%s\n", what, string(m))
	return nil
}

// Materializes all outputs of the pipeline, discarding the images
func run(seq *ops.OpSequence, c *ops.Context) error {
	outs, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.MaxThreads, true)
	return err
}
