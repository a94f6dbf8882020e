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

package denoise

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/stats"
)

// Pairwise motion fields of a sequence. Field k describes the motion from
// frame k to frame k+1, for k in [0, NumFrames-2]. Read-only once built
type Store struct {
	NumFrames int
	Width     int
	Height    int
	Fields    []*flow.Field
}

// Creates a store from precomputed pairwise fields for a sequence of numFrames frames
func NewStore(numFrames, width, height int, fields []*flow.Field) (*Store, error) {
	if numFrames <= 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	if len(fields) != numFrames-1 {
		return nil, fmt.Errorf("%w: %d fields for %d frames", ErrInvalidInput, len(fields), numFrames)
	}
	for k, f := range fields {
		if f == nil || f.Width != width || f.Height != height || len(f.DX) != width*height || len(f.DY) != width*height {
			return nil, fmt.Errorf("%w: field %d does not match %dx%d", ErrInvalidInput, k, width, height)
		}
	}
	return &Store{NumFrames: numFrames, Width: width, Height: height, Fields: fields}, nil
}

// Motion field from frame k to frame k+1
func (s *Store) Field(k int) *flow.Field { return s.Fields[k] }

// Checks the sequence is non-empty and all frames share one shape
func checkFrames(frames []*frame.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	w, h := frames[0].Width, frames[0].Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidInput, w, h)
	}
	for i, f := range frames {
		if f == nil || f.Width != w || f.Height != h || len(f.Pix) != 3*w*h {
			return fmt.Errorf("%w: frame %d does not match %dx%d", ErrInvalidInput, i, w, h)
		}
	}
	return nil
}

// Estimates the motion field for every consecutive pair of frames.
// Pairs are processed concurrently, bounded by the configured thread limit
func EstimateMotion(frames []*frame.Frame, est flow.Estimator, c *Config, logWriter io.Writer) (*Store, error) {
	if err := checkFrames(frames); err != nil {
		return nil, err
	}
	if est == nil {
		return nil, fmt.Errorf("%w: no flow estimator", ErrInvalidInput)
	}
	if c == nil {
		def := DefaultConfig()
		c = &def
	}
	if logWriter == nil {
		logWriter = io.Discard
	}
	start := time.Now()
	numPairs := len(frames) - 1
	fields := make([]*flow.Field, numPairs)
	errs := make([]error, numPairs)

	// convert to gray once, each frame is used by up to two pairs
	grays := make([]*frame.Gray, len(frames))
	for i, f := range frames {
		grays[i] = frame.ToGray(f)
	}

	threads := c.MaxThreads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	limiter := make(chan bool, threads)
	for k := 0; k < numPairs; k++ {
		limiter <- true
		go func(k int) {
			defer func() { <-limiter }()
			f, err := est.Estimate(grays[k], grays[k+1])
			if err != nil {
				errs[k] = fmt.Errorf("estimating motion %d->%d: %w", k, k+1, err)
				return
			}
			if f == nil || f.Width != frames[0].Width || f.Height != frames[0].Height {
				errs[k] = fmt.Errorf("estimating motion %d->%d: %w", k, k+1, flow.ErrShape)
				return
			}
			if c.SmoothFlow {
				f.Smooth()
			}
			if c.InvertFlow {
				f.Negate()
			}
			fields[k] = f
		}(k)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for k, f := range fields {
		fmt.Fprintf(logWriter, "Motion %d->%d: median %.3g max %.3g pixels\n", k, k+1, stats.FlowMagnitudeMedian(f), f.MaxMagnitude())
	}
	fmt.Fprintf(logWriter, "Estimated %d motion fields in %v\n", numPairs, time.Since(start).Round(time.Millisecond))

	if c.FlowOut != "" {
		if err := WriteFlowImages(fields, c.FlowOut, logWriter); err != nil {
			return nil, err
		}
	}
	return NewStore(len(frames), frames[0].Width, frames[0].Height, fields)
}

// Writes a colour wheel and an arrow visualisation for each field. The pattern
// must contain %d, which is replaced with the pair index. Arrow images get an
// _arrows suffix before the file extension
func WriteFlowImages(fields []*flow.Field, pattern string, logWriter io.Writer) error {
	if logWriter == nil {
		logWriter = io.Discard
	}
	for k, f := range fields {
		colorName := fmt.Sprintf(pattern, k)
		ext := filepath.Ext(colorName)
		arrowName := strings.TrimSuffix(colorName, ext) + "_arrows" + ext
		fmt.Fprintf(logWriter, "Writing flow images %s and %s\n", colorName, arrowName)
		if err := frame.WriteImageFile(colorName, f.ColorImage()); err != nil {
			return err
		}
		if err := frame.WriteImageFile(arrowName, f.ArrowImage(20, 0.5)); err != nil {
			return err
		}
	}
	return nil
}
