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
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	nl "github.com/mlnoga/mctf/internal"
	"github.com/mlnoga/mctf/internal/denoise"
	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/ops"
	"github.com/mlnoga/mctf/internal/ops/temporal"
	"github.com/mlnoga/mctf/internal/rest"
	"github.com/mlnoga/mctf/internal/stats"
	"github.com/mlnoga/mctf/internal/synth"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.yuv", "save output to `file`. Suffix .yuv writes raw YUV 4:2:0, otherwise a frame pattern with %d, e.g. `out%04d.png`")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var flowOut = flag.String("flowOut", "", "save flow visualisations with given filename pattern, e.g. `flow%04d.png`")
var config = flag.String("config", "", "read denoising parameters from YAML or JSON `file`. Flags given explicitly take precedence")

var radius = flag.Int("radius", 4, "temporal window radius, uses up to 2*radius neighbouring frames")
var threshold = flag.Int("threshold", 40, "reject motion compensated samples whose weighted color difference exceeds this")
var threads = flag.Int("threads", runtime.GOMAXPROCS(0), "maximum number of threads")
var memoryMB = flag.Int("memory", 0, "total MiB of memory to use for denoising workers, 0=0.7x physical memory")
var estimator = flag.String("estimator", "hornSchunck", "motion estimator, one of "+strings.Join(temporal.EstimatorNames(), ", "))
var resampler = flag.String("resampler", "bilinear", "resampler, one of "+strings.Join(temporal.ResamplerNames(), ", "))
var invertFlow = flag.Bool("invertFlow", false, "negate estimated motion fields, for estimators with the opposite sign convention")
var smoothFlow = flag.Bool("smoothFlow", false, "apply a 3x3 median filter to estimated motion fields")
var hsAlpha = flag.Float64("hsAlpha", 100, "Horn-Schunck smoothness weight")
var hsIter = flag.Int("hsIter", 160, "Horn-Schunck Jacobi iterations per pyramid level")
var hsLevels = flag.Int("hsLevels", 3, "Horn-Schunck pyramid levels")

var width = flag.Int("width", frame.DefaultYUVWidth, "frame width of raw YUV files")
var height = flag.Int("height", frame.DefaultYUVHeight, "frame height of raw YUV files")

var frames = flag.Int("frames", 9, "synth: number of frames")
var noise = flag.Float64("noise", 8, "synth: standard deviation of additive Gaussian noise")
var dx = flag.Float64("dx", 1, "synth: horizontal motion in pixels per frame")
var dy = flag.Float64("dy", 0.5, "synth: vertical motion in pixels per frame")
var spikes = flag.Int("spikes", 0, "synth: number of impulse noise pixels per frame")
var seed = flag.Uint("seed", 1, "synth: random seed")
var clean = flag.String("clean", "", "synth: also save the noise free sequence to `file`")

var addr = flag.String("addr", ":8080", "serve: listen address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user id after chroot, <0 = no change")
var sandbox = flag.Bool("sandbox", true, "serve: restrict pipelines to relative paths below the working directory")

func main() {
	logWriter := nl.LogWriter
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `mctf Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (denoise|flow|synth|stats|serve|legal|version) (args)

Commands:
  denoise Denoise a sequence. Input is one raw .yuv file, or image files in temporal order
  flow    Estimate and visualise motion between two images
  synth   Write a synthetic noisy sequence of a moving pattern
  stats   Compare two sequences, showing PSNR and residual noise
  serve   Serve the JSON pipeline API over HTTP
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}
	if *log != "" && (args[0] == "denoise" || args[0] == "synth" || args[0] == "flow") {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "denoise":
		err = cmdDenoise(args[1:], logWriter)

	case "flow":
		err = cmdFlow(args[1:], logWriter)

	case "synth":
		err = cmdSynth(logWriter)

	case "stats":
		err = cmdStats(args[1:], logWriter)

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err != nil {
			break
		}
		s := rest.NewServer(*sandbox)
		s.MaxThreads = *threads
		fmt.Fprintf(logWriter, "Listening on %s\n", *addr)
		err = s.Serve(*addr)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatalf("Could not create memory profile: %s\n", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatalf("Could not write allocation profile: %s\n", err)
		}
	}

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

// Denoising parameters from the optional config file, overridden by explicitly given flags
func denoiseConfig() (denoise.Config, error) {
	c := denoise.DefaultConfig()
	if *config != "" {
		var err error
		if c, err = denoise.LoadConfig(*config); err != nil {
			return c, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "radius":
			c.Radius = *radius
		case "threshold":
			c.Threshold = *threshold
		case "threads":
			c.MaxThreads = *threads
		case "memory":
			c.MemoryMB = *memoryMB
		case "invertFlow":
			c.InvertFlow = *invertFlow
		case "smoothFlow":
			c.SmoothFlow = *smoothFlow
		case "flowOut":
			c.FlowOut = *flowOut
		case "hsAlpha":
			c.HornSchunck.Alpha = *hsAlpha
		case "hsIter":
			c.HornSchunck.Iterations = *hsIter
		case "hsLevels":
			c.HornSchunck.Levels = *hsLevels
		}
	})
	return c, c.Validate()
}

func isYUV(fileName string) bool {
	return strings.ToLower(filepath.Ext(fileName)) == ".yuv"
}

// Builds the operator for loading the given command line arguments
func loadOperator(args []string) (ops.Operator, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no input files given")
	}
	if len(args) == 1 && isYUV(args[0]) {
		return ops.NewOpLoadYUV(args[0], *width, *height), nil
	}
	return ops.NewOpLoadMany(args), nil
}

// Builds the operator for saving to the given output file or pattern
func saveOperator(fileName string) ops.Operator {
	if isYUV(fileName) {
		return ops.NewOpSaveYUV(fileName)
	}
	return ops.NewOpForEach(ops.NewOpSave(fileName))
}

// Loads a sequence from a raw YUV file or from image files
func loadSequence(args []string, logWriter io.Writer) ([]*frame.Frame, error) {
	opLoad, err := loadOperator(args)
	if err != nil {
		return nil, err
	}
	return ops.Run(ops.NewOpSequence(opLoad), ops.NewContext(logWriter))
}

// Saves a sequence to a raw YUV file or to a pattern of image files
func saveSequence(fileName string, fs []*frame.Frame, logWriter io.Writer) error {
	c := ops.NewContext(logWriter)
	promises, err := saveOperator(fileName).MakePromises(ops.Promises(fs), c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, c.MaxThreads, false)
	return err
}

func cmdDenoise(args []string, logWriter io.Writer) error {
	c, err := denoiseConfig()
	if err != nil {
		return err
	}
	opLoad, err := loadOperator(args)
	if err != nil {
		return err
	}
	seq := ops.NewOpSequence(
		opLoad,
		temporal.NewOpDenoise(c, *estimator, *resampler),
		saveOperator(*out),
	)

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "\nDenoising with these settings:\n%s\n", string(m))

	ctx := ops.NewContext(logWriter)
	if *threads > 0 {
		ctx.MaxThreads = *threads
	}
	fmt.Fprintf(logWriter, "Running on %s with %d MiB of memory\n", ctx.CPU, ctx.MemoryMB)
	_, err = ops.Run(seq, ctx)
	return err
}

func cmdFlow(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("flow needs exactly two images, got %d", len(args))
	}
	c, err := denoiseConfig()
	if err != nil {
		return err
	}
	pair := make([]*frame.Frame, 2)
	for i, fileName := range args {
		if pair[i], err = frame.Load(fileName); err != nil {
			return err
		}
	}
	if !pair[0].SameShape(pair[1]) {
		return fmt.Errorf("%w: images have sizes %s and %s", denoise.ErrInvalidInput,
			pair[0].DimensionsToString(), pair[1].DimensionsToString())
	}
	est, err := temporal.NewEstimator(*estimator, &c)
	if err != nil {
		return err
	}
	store, err := denoise.EstimateMotion(pair, est, &c, logWriter)
	if err != nil {
		return err
	}
	f := store.Field(0)
	fmt.Fprintf(logWriter, "Flow from %s to %s: median magnitude %.3f, maximum %.3f\n",
		args[0], args[1], stats.FlowMagnitudeMedian(f), f.MaxMagnitude())

	if c.FlowOut != "" { // already written during motion estimation
		return nil
	}
	return denoise.WriteFlowImages([]*flow.Field{f}, "flow%d.png", logWriter)
}

func cmdSynth(logWriter io.Writer) error {
	p := synth.DefaultParams()
	p.Width, p.Height, p.Frames = *width, *height, *frames
	p.DX, p.DY, p.Noise, p.Spikes, p.Seed = *dx, *dy, *noise, *spikes, uint32(*seed)
	if p.Width <= 0 || p.Height <= 0 || p.Frames <= 0 {
		return fmt.Errorf("%w: synth needs positive size and frame count", denoise.ErrInvalidInput)
	}
	fmt.Fprintf(logWriter, "Generating %d frames of %dx%d moving by (%g,%g) with noise sigma %g and %d spikes\n",
		p.Frames, p.Width, p.Height, p.DX, p.DY, p.Noise, p.Spikes)
	cleanFrames, noisyFrames := synth.Generate(p)
	if *clean != "" {
		if err := saveSequence(*clean, cleanFrames, logWriter); err != nil {
			return err
		}
	}
	return saveSequence(*out, noisyFrames, logWriter)
}

func cmdStats(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("stats needs exactly two sequences, got %d", len(args))
	}
	as, err := loadSequence(args[:1], logWriter)
	if err != nil {
		return err
	}
	bs, err := loadSequence(args[1:], logWriter)
	if err != nil {
		return err
	}
	psnr, err := stats.SequencePSNR(as, bs)
	if err != nil {
		return err
	}
	sigmaSum := 0.0
	for i := range as {
		sigma, err := stats.ResidualSigma(as[i], bs[i])
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		sigmaSum += sigma
	}
	fmt.Fprintf(logWriter, "%d frames: mean PSNR %.2f dB, mean residual noise sigma %.3f\n",
		len(as), psnr, sigmaSum/float64(len(as)))
	return nil
}
