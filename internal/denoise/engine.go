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

// Package denoise implements motion-compensated temporal denoising. For every
// reference frame, the neighbouring frames within a temporal window are
// aligned via chained pairwise motion fields, and only pixels agreeing with
// the reference are averaged into the output.
package denoise

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/warp"
)

// Denoises one sequence. Input frames are never modified
type Engine struct {
	Frames    []*frame.Frame
	Config    Config
	Estimator flow.Estimator
	Resampler warp.Resampler
	Log       io.Writer

	Store *Store // Motion fields, available after Execute
}

// Creates an engine after validating the sequence and configuration
func NewEngine(frames []*frame.Frame, c Config, est flow.Estimator, res warp.Resampler, logWriter io.Writer) (*Engine, error) {
	if err := checkFrames(frames); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if est == nil || res == nil {
		return nil, fmt.Errorf("%w: missing estimator or resampler", ErrInvalidInput)
	}
	if logWriter == nil {
		logWriter = io.Discard
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = runtime.GOMAXPROCS(0)
	}
	return &Engine{Frames: frames, Config: c, Estimator: est, Resampler: res, Log: logWriter}, nil
}

// Estimates motion, then denoises every frame. Returns the index aligned
// denoised sequence, or an error and no frames
func (e *Engine) Execute() ([]*frame.Frame, error) {
	start := time.Now()
	store, err := EstimateMotion(e.Frames, e.Estimator, &e.Config, e.Log)
	if err != nil {
		return nil, err
	}
	e.Store = store

	numFrames, w, h := len(e.Frames), e.Frames[0].Width, e.Frames[0].Height
	workers, bandThreads := WorkerThreads(w, h, numFrames, e.Config.Radius, e.Config.MemoryMB, e.Config.MaxThreads)
	fmt.Fprintf(e.Log, "Denoising %d frames of %dx%d with radius %d threshold %d using %d workers\n",
		numFrames, w, h, e.Config.Radius, e.Config.Threshold, workers)

	outs := make([]*frame.Frame, numFrames)
	errs := make([]error, numFrames)
	total := TargetStats{}
	totalLock := sync.Mutex{}

	limiter := make(chan bool, workers)
	for r := 0; r < numFrames; r++ {
		limiter <- true
		go func(r int) {
			defer func() { <-limiter }()
			win := ComposeWindow(store, r, e.Config.Radius)
			out, st, err := BuildTarget(e.Frames, win, e.Resampler, e.Config.Threshold, bandThreads)
			if err != nil {
				errs[r] = err
				return
			}
			outs[r] = out

			totalLock.Lock()
			total.Contributors += st.Contributors
			total.Samples += st.Samples
			total.Rejected += st.Rejected
			totalLock.Unlock()
		}(r)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	rejectedPercent := 0.0
	if total.Samples > 0 {
		rejectedPercent = 100 * float64(total.Rejected) / float64(total.Samples)
	}
	fmt.Fprintf(e.Log, "Denoised %d frames with %d contributions, rejected %.2f%% of samples, in %v\n",
		numFrames, total.Contributors, rejectedPercent, time.Since(start).Round(time.Millisecond))
	return outs, nil
}

// Convenience wrapper: creates an engine and executes it
func Denoise(frames []*frame.Frame, c Config, est flow.Estimator, res warp.Resampler, logWriter io.Writer) ([]*frame.Frame, error) {
	e, err := NewEngine(frames, c, est, res, logWriter)
	if err != nil {
		return nil, err
	}
	return e.Execute()
}
