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

package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lumaTestCase struct {
	R, G, B uint8
	Y       uint8
}

func TestLuma(t *testing.T) {
	tcs := []lumaTestCase{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{255, 0, 0, 76},
		{0, 255, 0, 150},
		{0, 0, 255, 29},
		{100, 100, 100, 100},
	}
	for _, tc := range tcs {
		if y := Luma(tc.R, tc.G, tc.B); y != tc.Y {
			t.Errorf("Luma(%d,%d,%d)=%d; want %d", tc.R, tc.G, tc.B, y, tc.Y)
		}
	}
}

func TestToGray(t *testing.T) {
	f := New(3, 2)
	f.Set(0, 0, 255, 0, 0)
	f.Set(2, 1, 10, 20, 30)
	g := ToGray(f)
	require.Equal(t, 3, g.Width)
	require.Equal(t, 2, g.Height)
	assert.Equal(t, float32(76), g.At(0, 0))
	assert.Equal(t, float32(Luma(10, 20, 30)), g.At(2, 1))
	assert.Equal(t, float32(0), g.At(1, 1))
	assert.Equal(t, g.At(2, 1), g.AtClamped(5, 9))
	assert.Equal(t, g.At(0, 0), g.AtClamped(-1, -3))
}

func TestGrayHalf(t *testing.T) {
	g := NewGray(4, 2)
	copy(g.Pix, []float32{0, 4, 8, 8, 4, 0, 8, 8})
	h := g.Half()
	require.Equal(t, 2, h.Width)
	require.Equal(t, 1, h.Height)
	assert.Equal(t, []float32{2, 8}, h.Pix)
}

func TestImageRoundTrip(t *testing.T) {
	f := New(5, 4)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Set(x, y, uint8(10*x), uint8(20*y), uint8(x+y))
		}
	}
	back := FromImage(f.ToImage())
	assert.True(t, f.Equal(back))

	fileName := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, f.WriteFile(fileName))
	loaded, err := Load(fileName)
	require.NoError(t, err)
	assert.True(t, f.Equal(loaded))

	assert.ErrorIs(t, f.WriteFile(filepath.Join(t.TempDir(), "frame.bmp")), ErrUnknownSuffix)
}

func TestYUV420GrayRoundTrip(t *testing.T) {
	frames := []*Frame{New(4, 4), New(4, 4)}
	frames[0].Fill(128, 128, 128)
	frames[1].Fill(37, 37, 37)

	var buf bytes.Buffer
	require.NoError(t, WriteYUV420(&buf, frames))
	require.Equal(t, 2*YUV420FrameSize(4, 4), buf.Len())

	back, err := ReadYUV420(&buf, 4, 4)
	require.NoError(t, err)
	require.Len(t, back, 2)
	for i := range frames {
		assert.True(t, frames[i].Equal(back[i]), "frame %d", i)
		assert.Equal(t, i, back[i].ID)
	}
}

func TestYUV420ColorRoundTrip(t *testing.T) {
	f := New(2, 2)
	f.Fill(200, 60, 30)
	var buf bytes.Buffer
	require.NoError(t, WriteYUV420(&buf, []*Frame{f}))
	back, err := ReadYUV420(&buf, 2, 2)
	require.NoError(t, err)
	require.Len(t, back, 1)
	for i, v := range f.Pix {
		assert.InDelta(t, float64(v), float64(back[0].Pix[i]), 3, "channel value %d", i)
	}
}

func TestYUV420Errors(t *testing.T) {
	_, err := ReadYUV420(bytes.NewReader(nil), 3, 4)
	assert.ErrorIs(t, err, ErrOddSize)

	frames, err := ReadYUV420(bytes.NewReader(make([]byte, YUV420FrameSize(4, 4)+5)), 4, 4)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, frames, 1)

	frames, err = ReadYUV420(bytes.NewReader(nil), 4, 4)
	assert.NoError(t, err)
	assert.Empty(t, frames)

	err = WriteYUV420(io.Discard, []*Frame{New(4, 4), New(2, 2)})
	assert.Error(t, err)
}

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestFinishFileReportsClose(t *testing.T) {
	errClose, errWrite := errors.New("close"), errors.New("write")

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	w.WriteString("frame")
	c := &closer{err: errClose}
	assert.ErrorIs(t, finishFile(nil, w, c), errClose)
	assert.True(t, c.closed)
	assert.Equal(t, "frame", buf.String())

	c = &closer{err: errClose}
	assert.ErrorIs(t, finishFile(errWrite, bufio.NewWriter(&buf), c), errWrite)
	assert.True(t, c.closed)

	c = &closer{}
	assert.NoError(t, finishFile(nil, bufio.NewWriter(&buf), c))
	assert.True(t, c.closed)
}
