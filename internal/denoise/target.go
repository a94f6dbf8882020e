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
	"math"
	"sync/atomic"

	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/warp"
)

// Per-pixel running sums for one reference frame. Sum holds three channels
// interleaved like frame.Frame.Pix, Weight one entry per pixel
type Accumulator struct {
	Width  int
	Height int
	Sum    []float64
	Weight []float64
}

// Initializes the sums with the reference pixels and all weights with one
func NewAccumulator(ref *frame.Frame) *Accumulator {
	a := &Accumulator{
		Width:  ref.Width,
		Height: ref.Height,
		Sum:    make([]float64, len(ref.Pix)),
		Weight: make([]float64, ref.Width*ref.Height),
	}
	for i, v := range ref.Pix {
		a.Sum[i] = float64(v)
	}
	for i := range a.Weight {
		a.Weight[i] = 1
	}
	return a
}

// Gates each pixel of the aligned contributor against the reference and adds
// the accepted ones. A pixel is rejected if (|dR| + 2|dG| + |dB|)/4 exceeds
// the threshold, in integer arithmetic. Disjoint row bands run in parallel.
// Returns the number of rejected pixels
func (a *Accumulator) Accumulate(ref, warped *frame.Frame, threshold, threads int) int64 {
	if threads < 1 {
		threads = 1
	}
	bandSize := (a.Height + threads - 1) / threads
	var rejected int64
	sem := make(chan bool, threads)
	for lower := 0; lower < a.Height; lower += bandSize {
		upper := lower + bandSize
		if upper > a.Height {
			upper = a.Height
		}
		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()
			r := a.accumulateRows(ref, warped, threshold, lower, upper)
			atomic.AddInt64(&rejected, r)
		}(lower, upper)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
	return rejected
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func (a *Accumulator) accumulateRows(ref, warped *frame.Frame, threshold, lower, upper int) (rejected int64) {
	for p := lower * a.Width; p < upper*a.Width; p++ {
		o := 3 * p
		y := (absDiff(warped.Pix[o], ref.Pix[o]) + 2*absDiff(warped.Pix[o+1], ref.Pix[o+1]) + absDiff(warped.Pix[o+2], ref.Pix[o+2])) / 4
		if y > threshold {
			rejected++
			continue
		}
		a.Sum[o] += float64(warped.Pix[o])
		a.Sum[o+1] += float64(warped.Pix[o+1])
		a.Sum[o+2] += float64(warped.Pix[o+2])
		a.Weight[p]++
	}
	return rejected
}

// Divides sums by weights, rounding half to even and clamping to [0,255]
func (a *Accumulator) Normalize() *frame.Frame {
	res := frame.New(a.Width, a.Height)
	for p, w := range a.Weight {
		o := 3 * p
		for c := 0; c < 3; c++ {
			v := math.RoundToEven(a.Sum[o+c] / w)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			res.Pix[o+c] = uint8(v)
		}
	}
	return res
}

// Counts of a single target frame build
type TargetStats struct {
	Contributors int   // Present contributors in the window
	Samples      int64 // Contributor pixels examined
	Rejected     int64 // Contributor pixels rejected by the gate
}

// Builds the denoised frame for reference r: every contributor of the window
// is warped into alignment with the reference, gated per pixel and averaged
// together with the reference. Contributors are accumulated one after another
func BuildTarget(frames []*frame.Frame, win *Window, res warp.Resampler, threshold, threads int) (*frame.Frame, TargetStats, error) {
	ref := frames[win.Reference]
	acc := NewAccumulator(ref)
	st := TargetStats{}
	for _, c := range win.Contributions() {
		m, err := warp.NewDisplacementMap(ref.Width, ref.Height, c.Field.DX, c.Field.DY)
		if err != nil {
			return nil, st, fmt.Errorf("contributor %d of frame %d: %w", c.Index, win.Reference, err)
		}
		warped, err := res.Resample(frames[c.Index], m)
		if err != nil {
			return nil, st, fmt.Errorf("resampling frame %d for frame %d: %w", c.Index, win.Reference, err)
		}
		if warped == nil || !warped.SameShape(ref) || len(warped.Pix) != len(ref.Pix) {
			return nil, st, fmt.Errorf("resampling frame %d for frame %d: %w: wrong output shape", c.Index, win.Reference, ErrInvalidInput)
		}
		st.Rejected += acc.Accumulate(ref, warped, threshold, threads)
		st.Samples += int64(ref.Width * ref.Height)
		st.Contributors++
	}
	out := acc.Normalize()
	out.ID = ref.ID
	return out, st, nil
}
