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
	"math"
	"testing"

	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogram(t *testing.T) {
	bins := make([]int32, 4)
	Histogram([]float64{-10, 0, 0.9, 1, 3.5, 99}, 0, 4, bins)
	assert.Equal(t, []int32{3, 1, 0, 2}, bins)

	x, y := GetPeak(bins, 0, 4)
	assert.Equal(t, 0.5, x)
	assert.Equal(t, 3.0, y)
}

func TestModeStdDevFromGaussian(t *testing.T) {
	const sigma, mu = 5.0, 2.0
	bins := make([]int32, 511)
	for i := range bins {
		x := binCenter(i, -255.5, 255.5, len(bins))
		z := (x - mu) / sigma
		bins[i] = int32(math.Round(10000 / (sigma * math.Sqrt(2*math.Pi)) * math.Exp(-0.5*z*z)))
	}
	mode, stdDev, err := GetModeStdDevFromHistogram(bins, -255.5, 255.5)
	require.NoError(t, err)
	assert.InDelta(t, mu, mode, 0.25)
	assert.InDelta(t, sigma, stdDev, 0.25)

	_, _, err = GetModeStdDevFromHistogram(make([]int32, 8), 0, 8)
	assert.ErrorIs(t, err, ErrEmptyHistogram)
}

func TestPSNR(t *testing.T) {
	a, b := frame.New(4, 4), frame.New(4, 4)
	a.Fill(100, 100, 100)
	b.Fill(101, 99, 101)

	p, err := PSNR(a, a)
	require.NoError(t, err)
	assert.True(t, math.IsInf(p, 1))

	p, err = PSNR(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 48.1308, p, 1e-3)

	_, err = PSNR(a, frame.New(2, 2))
	assert.Error(t, err)

	seq, err := SequencePSNR([]*frame.Frame{a, a}, []*frame.Frame{a, b})
	require.NoError(t, err)
	assert.InDelta(t, 48.1308, seq, 1e-3)
}

func TestResidualSigmaIdentical(t *testing.T) {
	a := frame.New(8, 8)
	a.Fill(10, 20, 30)
	s, err := ResidualSigma(a, a.Clone())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestFlowMagnitudeMedian(t *testing.T) {
	f := flow.NewConstantField(3, 3, 3, 4)
	f.DX[0], f.DY[0] = 100, 100
	assert.Equal(t, 5.0, FlowMagnitudeMedian(f))
}
