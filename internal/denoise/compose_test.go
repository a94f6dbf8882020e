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
	"testing"

	"github.com/mlnoga/mctf/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantStore(t *testing.T, numFrames, width, height int, u, v float64) *Store {
	fields := make([]*flow.Field, numFrames-1)
	for k := range fields {
		fields[k] = flow.NewConstantField(width, height, u, v)
	}
	s, err := NewStore(numFrames, width, height, fields)
	require.NoError(t, err)
	return s
}

func TestComposeConstantFlowAntisymmetry(t *testing.T) {
	const u, v = 0.5, -0.25
	s := constantStore(t, 9, 3, 2, u, v)
	win := ComposeWindow(s, 4, 4)

	require.Len(t, win.Backward, 4)
	require.Len(t, win.Forward, 4)
	for i, c := range win.Backward {
		k := i + 1
		assert.Equal(t, 4-k, c.Index)
		assert.Equal(t, flow.NewConstantField(3, 2, float64(k)*u, float64(k)*v), c.Field, "backward k=%d", k)
	}
	for i, c := range win.Forward {
		k := i + 1
		assert.Equal(t, 4+k, c.Index)
		assert.Equal(t, flow.NewConstantField(3, 2, -float64(k)*u, -float64(k)*v), c.Field, "forward k=%d", k)
	}
}

func TestComposeBoundaryTruncation(t *testing.T) {
	const numFrames, radius = 7, 4
	s := constantStore(t, numFrames, 2, 2, 1, 1)
	for r := 0; r < numFrames; r++ {
		back, fwd := ComposeBackward(s, r, radius), ComposeForward(s, r, radius)
		wantBack, wantFwd := radius, radius
		if r < radius {
			wantBack = r
		}
		if r > numFrames-1-radius {
			wantFwd = numFrames - 1 - r
		}
		assert.Len(t, back, wantBack, "backward r=%d", r)
		assert.Len(t, fwd, wantFwd, "forward r=%d", r)

		// contributor set is exactly {max(0,r-N)..r-1} and {r+1..min(F-1,r+N)}
		for i, c := range back {
			assert.Equal(t, r-1-i, c.Index)
		}
		for i, c := range fwd {
			assert.Equal(t, r+1+i, c.Index)
		}
	}
}

func TestComposeSumsDistinctFields(t *testing.T) {
	fields := []*flow.Field{
		flow.NewConstantField(1, 1, 1, 10),
		flow.NewConstantField(1, 1, 2, 20),
		flow.NewConstantField(1, 1, 4, 40),
	}
	s, err := NewStore(4, 1, 1, fields)
	require.NoError(t, err)

	back := ComposeBackward(s, 3, 3)
	require.Len(t, back, 3)
	assert.Equal(t, []float64{4}, back[0].Field.DX)  // flow[2]
	assert.Equal(t, []float64{6}, back[1].Field.DX)  // flow[1]+flow[2]
	assert.Equal(t, []float64{70}, back[2].Field.DY) // flow[0]+flow[1]+flow[2]

	fwd := ComposeForward(s, 0, 3)
	require.Len(t, fwd, 3)
	assert.Equal(t, []float64{-1}, fwd[0].Field.DX)
	assert.Equal(t, []float64{-3}, fwd[1].Field.DX)
	assert.Equal(t, []float64{-70}, fwd[2].Field.DY)

	// composition never modifies the store
	assert.Equal(t, []float64{1}, s.Field(0).DX)
	assert.Equal(t, []float64{4}, s.Field(2).DX)
}

func TestComposeRadiusZero(t *testing.T) {
	s := constantStore(t, 3, 2, 2, 1, 1)
	win := ComposeWindow(s, 1, 0)
	assert.Empty(t, win.Backward)
	assert.Empty(t, win.Forward)
	assert.Empty(t, win.Contributions())
}

func TestNewStoreErrors(t *testing.T) {
	_, err := NewStore(0, 2, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewStore(3, 2, 2, []*flow.Field{flow.NewField(2, 2)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewStore(2, 2, 2, []*flow.Field{flow.NewField(3, 2)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestComposeLeavesStoreUntouched(t *testing.T) {
	s := constantStore(t, 5, 2, 2, 1, -2)
	ComposeWindow(s, 2, 2)
	ComposeWindow(s, 4, 4)
	for k, f := range s.Fields {
		assert.Equal(t, flow.NewConstantField(2, 2, 1, -2), f, "field %d", k)
	}

	win := ComposeWindow(s, 2, 2)
	assert.Equal(t, []float64{2, 2, 2, 2}, win.Backward[1].Field.DX)
	assert.Equal(t, []float64{4, 4, 4, 4}, win.Forward[1].Field.DY)
}
