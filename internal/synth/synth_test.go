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

package synth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height, p.Frames, p.Spikes = 32, 16, 3, 5
	c1, n1 := Generate(p)
	c2, n2 := Generate(p)
	require.Len(t, c1, 3)
	require.Len(t, n1, 3)
	for i := range c1 {
		assert.True(t, c1[i].Equal(c2[i]))
		assert.True(t, n1[i].Equal(n2[i]))
		assert.False(t, c1[i].Equal(n1[i]))
		assert.Equal(t, i, n1[i].ID)
	}
}

func TestPatternMotion(t *testing.T) {
	a := Pattern(20, 10, 0, 0)
	b := Pattern(20, 10, 3, 2)
	// content of a at (x,y) appears in b at (x+3,y+2)
	for y := 0; y < 8; y++ {
		for x := 0; x < 17; x++ {
			r1, g1, b1 := a.At(x, y)
			r2, g2, b2 := b.At(x+3, y+2)
			assert.Equal(t, []uint8{r1, g1, b1}, []uint8{r2, g2, b2})
		}
	}
}

func TestGaussian(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	xs := make([]float64, 20000)
	for i := range xs {
		xs[i] = Gaussian(&rng)
		require.False(t, math.IsInf(xs[i], 0) || math.IsNaN(xs[i]))
	}
	mean, sd := stat.MeanStdDev(xs, nil)
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, sd, 0.05)
}
