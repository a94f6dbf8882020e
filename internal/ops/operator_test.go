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

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/mctf/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() (*Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	c := NewContext(buf)
	return c, buf
}

func TestMaterializeAllOrderAndErrors(t *testing.T) {
	ins := make([]Promise, 10)
	for i := range ins {
		id := i
		ins[i] = func() (*frame.Frame, error) {
			f := frame.New(1, 1)
			f.ID = id
			return f, nil
		}
	}
	outs, err := MaterializeAll(ins, 3, false)
	require.NoError(t, err)
	require.Len(t, outs, 10)
	for i, f := range outs {
		assert.Equal(t, i, f.ID)
	}

	e1, e2 := errors.New("first"), errors.New("second")
	ins[2] = func() (*frame.Frame, error) { return nil, e1 }
	ins[7] = func() (*frame.Frame, error) { return nil, e2 }
	outs, err = MaterializeAll(ins, 4, false)
	assert.Nil(t, outs)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)

	outs, err = MaterializeAll(nil, 4, false)
	assert.NoError(t, err)
	assert.Nil(t, outs)
}

func TestCheckPath(t *testing.T) {
	c, _ := testContext()
	assert.NoError(t, c.CheckPath("/abs/path.png"))
	c.Sandboxed = true
	assert.Error(t, c.CheckPath("/abs/path.png"))
	assert.Error(t, c.CheckPath("../up.png"))
	assert.NoError(t, c.CheckPath("out/frame%d.png"))
}

func TestExpandPattern(t *testing.T) {
	assert.Equal(t, "f007.png", ExpandPattern("f%03d.png", 7))
	assert.Equal(t, "fixed.png", ExpandPattern("fixed.png", 7))
}

func TestSequenceJSON(t *testing.T) {
	js := `{"type":"seq","steps":[
		{"type":"loadYUV","fileName":"in.yuv","width":64},
		{"type":"forEach","operation":{"type":"save","filePattern":"out%d.png"}},
		{"type":"saveYUV","fileName":"out.yuv"}
	]}`
	seq := NewOpSequenceDefault()
	require.NoError(t, json.Unmarshal([]byte(js), seq))
	require.Len(t, seq.Steps, 3)
	assert.True(t, seq.Active)

	load, ok := seq.Steps[0].(*OpLoadYUV)
	require.True(t, ok)
	assert.Equal(t, 64, load.Width)
	assert.Equal(t, frame.DefaultYUVHeight, load.Height) // default kept
	assert.True(t, load.Active)

	each, ok := seq.Steps[1].(*OpForEach)
	require.True(t, ok)
	save, ok := each.Operation.(*OpSave)
	require.True(t, ok)
	assert.Equal(t, "out%d.png", save.FilePattern)
	assert.NotNil(t, save.OpUnaryBase.Apply)

	// marshal and parse again
	data, err := json.Marshal(seq)
	require.NoError(t, err)
	seq2 := NewOpSequenceDefault()
	require.NoError(t, json.Unmarshal(data, seq2))
	require.Len(t, seq2.Steps, 3)
	assert.Equal(t, "saveYUV", seq2.Steps[2].GetType())

	bad := NewOpSequenceDefault()
	assert.Error(t, json.Unmarshal([]byte(`{"steps":[{"type":"nope"}]}`), bad))
}

func writeTestYUV(t *testing.T, fileName string, n int) []*frame.Frame {
	frames := make([]*frame.Frame, n)
	for i := range frames {
		frames[i] = frame.New(8, 4)
		v := uint8(40 * (i + 1))
		frames[i].Fill(v, v, v)
	}
	require.NoError(t, frame.WriteYUV420File(fileName, frames))
	return frames
}

func TestYUVPipeline(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.yuv"), filepath.Join(dir, "out.yuv")
	frames := writeTestYUV(t, in, 3)

	// append a partial frame, which gets dropped
	fh, err := os.OpenFile(in, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	js := fmt.Sprintf(`{"steps":[
		{"type":"loadYUV","fileName":%q,"width":8,"height":4},
		{"type":"forEach","operation":{"type":"save","filePattern":%q}},
		{"type":"saveYUV","fileName":%q}
	]}`, in, filepath.Join(dir, "f%d.png"), out)

	c, log := testContext()
	res, err := RunJSON([]byte(js), c)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i := range frames {
		assert.True(t, frames[i].Equal(res[i]), "frame %d", i)
	}
	assert.Contains(t, log.String(), "dropping truncated trailing frame")

	back, err := frame.ReadYUV420File(out, 8, 4)
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.True(t, frames[2].Equal(back[2]))

	png, err := frame.Load(filepath.Join(dir, "f1.png"))
	require.NoError(t, err)
	assert.True(t, frames[1].Equal(png))
}

func TestLoadManyAndSandbox(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		f := frame.New(2, 2)
		f.Fill(uint8(i), 0, 0)
		require.NoError(t, frame.Save(filepath.Join(dir, fmt.Sprintf("img%d.png", i)), f))
	}
	c, _ := testContext()
	promises, err := NewOpLoadMany([]string{filepath.Join(dir, "img*.png")}).MakePromises(nil, c)
	require.NoError(t, err)
	fs, err := MaterializeAll(promises, 2, false)
	require.NoError(t, err)
	require.Len(t, fs, 3)
	for i, f := range fs {
		assert.Equal(t, i, f.ID)
		assert.Equal(t, uint8(i), f.Pix[0])
	}

	_, err = NewOpLoadMany([]string{filepath.Join(dir, "none*.png")}).MakePromises(nil, c)
	assert.Error(t, err)

	c.Sandboxed = true
	_, err = NewOpLoad(0, filepath.Join(dir, "img0.png")).MakePromises(nil, c)
	assert.Error(t, err)
}
