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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/median"
)

// Peak signal to noise ratio in dB between two frames, over all channels.
// Identical frames yield +Inf
func PSNR(a, b *frame.Frame) (float64, error) {
	if a == nil || b == nil || !a.SameShape(b) || len(a.Pix) != len(b.Pix) {
		return 0, fmt.Errorf("PSNR needs frames of equal size")
	}
	sumSq := 0.0
	for i, v := range a.Pix {
		d := float64(v) - float64(b.Pix[i])
		sumSq += d * d
	}
	if sumSq == 0 {
		return math.Inf(1), nil
	}
	mse := sumSq / float64(len(a.Pix))
	return 10 * math.Log10(255*255/mse), nil
}

// Mean PSNR in dB over index aligned frames of two sequences. Identical pairs are skipped
func SequencePSNR(as, bs []*frame.Frame) (float64, error) {
	if len(as) != len(bs) || len(as) == 0 {
		return 0, fmt.Errorf("sequences have %d and %d frames", len(as), len(bs))
	}
	sum, n := 0.0, 0
	for i := range as {
		p, err := PSNR(as[i], bs[i])
		if err != nil {
			return 0, fmt.Errorf("frame %d: %w", i, err)
		}
		if !math.IsInf(p, 1) {
			sum += p
			n++
		}
	}
	if n == 0 {
		return math.Inf(1), nil
	}
	return sum / float64(n), nil
}

// Estimates the standard deviation of the noise separating two frames,
// by fitting a normal distribution to the histogram of luma differences
func ResidualSigma(a, b *frame.Frame) (float64, error) {
	if a == nil || b == nil || !a.SameShape(b) || len(a.Pix) != len(b.Pix) {
		return 0, fmt.Errorf("residual needs frames of equal size")
	}
	diffs := make([]float64, a.Width*a.Height)
	for i := range diffs {
		o := 3 * i
		ya := frame.Luma(a.Pix[o], a.Pix[o+1], a.Pix[o+2])
		yb := frame.Luma(b.Pix[o], b.Pix[o+1], b.Pix[o+2])
		diffs[i] = float64(int(ya) - int(yb))
	}
	bins := make([]int32, 511)
	Histogram(diffs, -255.5, 255.5, bins)
	_, sigma, err := GetModeStdDevFromHistogram(bins, -255.5, 255.5)
	return sigma, err
}

// Median displacement magnitude of a motion field
func FlowMagnitudeMedian(f *flow.Field) float64 {
	return median.MedianFloat64(f.Magnitudes())
}
