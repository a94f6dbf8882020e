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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mlnoga/mctf/internal/frame"
)

// Load a single frame from a PNG, JPEG or TIFF file. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load frame from a file. Ignores any inputs provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, err
	}
	out := func() (f *frame.Frame, err error) {
		return op.Apply(c) // no inputs to materialize
	}
	return []Promise{out}, nil
}

func (op *OpLoad) Apply(c *Context) (f *frame.Frame, err error) {
	f, err = frame.Load(op.FileName)
	if err != nil {
		return nil, err
	}
	f.ID = op.ID
	fmt.Fprintf(c.Log, "%d: Loaded %s frame from %s\n", f.ID, f.DimensionsToString(), op.FileName)
	return f, nil
}

// Load many frames from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs in lexical order per pattern
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.CheckPath(match) != nil {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Load all frames of a raw planar YUV 4:2:0 file. Takes zero inputs, produces
// one output per complete frame. A truncated trailing frame is dropped with a warning
type OpLoadYUV struct {
	OpBase
	FileName string `json:"fileName"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadYUVDefault() }) } // register the operator for JSON decoding

func NewOpLoadYUVDefault() *OpLoadYUV { return NewOpLoadYUV("", frame.DefaultYUVWidth, frame.DefaultYUVHeight) }

func NewOpLoadYUV(fileName string, width, height int) *OpLoadYUV {
	return &OpLoadYUV{
		OpBase:   OpBase{Type: "loadYUV", Active: true},
		FileName: fileName,
		Width:    width,
		Height:   height,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpLoadYUV) UnmarshalJSON(data []byte) error {
	type defaults OpLoadYUV
	def := defaults(*NewOpLoadYUVDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpLoadYUV(def)
	return nil
}

// Reads the file right away, as the number of outputs depends on its contents
func (op *OpLoadYUV) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, err
	}
	frames, err := op.Apply(c)
	if err != nil {
		return nil, err
	}
	return Promises(frames), nil
}

func (op *OpLoadYUV) Apply(c *Context) ([]*frame.Frame, error) {
	frames, err := frame.ReadYUV420File(op.FileName, op.Width, op.Height)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Fprintf(c.Log, "Warning: dropping truncated trailing frame of %s\n", op.FileName)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%s operator found no frames in %s", op.Type, op.FileName)
	}
	fmt.Fprintf(c.Log, "Loaded %d frames of %dx%d from %s\n", len(frames), op.Width, op.Height, op.FileName)
	return frames, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the frame ID.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON, re-binding the unary apply method
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSave(def)
	op.OpUnaryBase.Apply = op.Apply
	if !hasKey(data, "active") {
		op.Active = op.FilePattern != ""
	}
	return nil
}

func (op *OpSave) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if err := c.CheckPath(op.FilePattern); err != nil {
		return nil, err
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpSave) Apply(f *frame.Frame, c *Context) (result *frame.Frame, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f.ID)
	fmt.Fprintf(c.Log, "%d: Writing %s pixel frame to %s\n", f.ID, f.DimensionsToString(), fileName)
	if err := frame.Save(fileName, f); err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Saves all inputs into one raw planar YUV 4:2:0 file, in input order.
// Takes n inputs, produces n outputs (the materialized but unchanged inputs)
type OpSaveYUV struct {
	OpBase
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveYUVDefault() }) } // register the operator for JSON decoding

func NewOpSaveYUVDefault() *OpSaveYUV { return NewOpSaveYUV("") }

func NewOpSaveYUV(fileName string) *OpSaveYUV {
	return &OpSaveYUV{
		OpBase:   OpBase{Type: "saveYUV", Active: fileName != ""},
		FileName: fileName,
	}
}

// Unmarshal the type from JSON. Active unless explicitly disabled or without file name
func (op *OpSaveYUV) UnmarshalJSON(data []byte) error {
	type defaults OpSaveYUV
	def := defaults(*NewOpSaveYUVDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSaveYUV(def)
	if !hasKey(data, "active") {
		op.Active = op.FileName != ""
	}
	return nil
}

func (op *OpSaveYUV) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator needs inputs", op.Type)
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, err
	}

	// all outputs share one materialization and one write
	var once sync.Once
	var frames []*frame.Frame
	var saveErr error
	run := func() {
		frames, saveErr = MaterializeAll(ins, c.MaxThreads, false)
		if saveErr != nil {
			return
		}
		saveErr = op.Apply(frames, c)
	}

	outs = make([]Promise, len(ins))
	for i := range ins {
		i := i
		outs[i] = func() (*frame.Frame, error) {
			once.Do(run)
			if saveErr != nil {
				return nil, saveErr
			}
			return frames[i], nil
		}
	}
	return outs, nil
}

func (op *OpSaveYUV) Apply(frames []*frame.Frame, c *Context) error {
	if !op.Active || op.FileName == "" {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(op.FileName), ".yuv") {
		fmt.Fprintf(c.Log, "Warning: writing raw YUV to %s without .yuv suffix\n", op.FileName)
	}
	fmt.Fprintf(c.Log, "Writing %d frames to %s\n", len(frames), op.FileName)
	return frame.WriteYUV420File(op.FileName, frames)
}
