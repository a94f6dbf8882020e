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

package warp

import (
	"math"
	"testing"

	"github.com/mlnoga/mctf/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampFrame(width, height int) *frame.Frame {
	f := frame.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(10*x + 50*y)
			f.Set(x, y, v, v, 255-v)
		}
	}
	return f
}

func TestIdentity(t *testing.T) {
	src := rampFrame(7, 5)
	res, err := NewBilinear().Resample(src, NewIdentityMap(7, 5))
	require.NoError(t, err)
	assert.True(t, src.Equal(res))
}

func TestIntegerShiftClampsToEdge(t *testing.T) {
	src := rampFrame(4, 3)
	dx := make([]float64, 12)
	dy := make([]float64, 12)
	for i := range dx {
		dx[i] = 2
	}
	m, err := NewDisplacementMap(4, 3, dx, dy)
	require.NoError(t, err)

	res, err := (&Bilinear{MaxThreads: 3}).Resample(src, m)
	require.NoError(t, err)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			sx := x + 2
			if sx > 3 {
				sx = 3
			}
			r, g, b := res.At(x, y)
			er, eg, eb := src.At(sx, y)
			assert.Equal(t, []uint8{er, eg, eb}, []uint8{r, g, b}, "pixel %d,%d", x, y)
		}
	}
}

func TestHalfPixelRoundsToEven(t *testing.T) {
	src := frame.New(4, 1)
	for x, v := range []uint8{1, 2, 3, 8} {
		src.Set(x, 0, v, v, v)
	}
	m := NewIdentityMap(4, 1)
	for i := range m.X {
		m.X[i] += 0.5
	}
	res, err := NewBilinear().Resample(src, m)
	require.NoError(t, err)
	got := []uint8{res.Pix[0], res.Pix[3], res.Pix[6], res.Pix[9]}
	// 1.5 -> 2, 2.5 -> 2, 5.5 -> 6, clamped 8
	assert.Equal(t, []uint8{2, 2, 6, 8}, got)
}

func TestNegativeAndNaNCoordinates(t *testing.T) {
	src := rampFrame(3, 3)
	m := NewIdentityMap(3, 3)
	for i := range m.X {
		m.X[i] = -100
		m.Y[i] = math.NaN()
	}
	res, err := NewBilinear().Resample(src, m)
	require.NoError(t, err)
	r, g, b := src.At(0, 0)
	for i := 0; i < 9; i++ {
		assert.Equal(t, []uint8{r, g, b}, res.Pix[3*i:3*i+3])
	}
}

func TestMapShapeErrors(t *testing.T) {
	src := rampFrame(3, 3)
	_, err := NewBilinear().Resample(src, &Map{Width: 3, Height: 3, X: make([]float64, 4), Y: make([]float64, 9)})
	assert.ErrorIs(t, err, ErrMapShape)
	_, err = NewBilinear().Resample(src, nil)
	assert.ErrorIs(t, err, ErrMapShape)
	_, err = NewDisplacementMap(3, 3, nil, nil)
	assert.ErrorIs(t, err, ErrMapShape)
}

func TestOutputHasMapShape(t *testing.T) {
	src := rampFrame(5, 5)
	res, err := NewBilinear().Resample(src, NewIdentityMap(2, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Width)
	assert.Equal(t, 3, res.Height)
	r, _, _ := res.At(1, 2)
	er, _, _ := src.At(1, 2)
	assert.Equal(t, er, r)
}
