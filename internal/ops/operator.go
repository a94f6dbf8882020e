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

// Package ops describes frame processing pipelines as chains of JSON
// serializable operators, which turn promises of input frames into
// promises of output frames.
package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/pbnjay/memory"
)

// An execution context for operators
type Context struct {
	Log        io.Writer
	MemoryMB   int    // memory.TotalMemory()/1024/1024
	WorkMB     int    // MemoryMB*7/10, budget for concurrent frame workers
	MaxThreads int    `json:"maxThreads"`
	CPU        string // Processor description for log output
	Sandboxed  bool   // Restrict file names to relative paths inside the working directory
}

func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		WorkMB:     memoryMB * 7 / 10,
		MaxThreads: runtime.GOMAXPROCS(0),
		CPU:        describeCPU(),
	}
}

func describeCPU() string {
	avx2 := ""
	if cpuid.CPU.AVX2() {
		avx2 = " with AVX2"
	}
	return fmt.Sprintf("%s, %d physical and %d logical cores%s", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, avx2)
}

// A promise for a frame. Returns a materialized frame, or an error
type Promise func() (f *frame.Frame, err error)

// Materializes all promises with given concurrency limit. Output order
// matches input order. Errors of all failed promises are joined
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*frame.Frame, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*frame.Frame, len(ins))
	}
	errs := make([]error, len(ins))
	limiter := make(chan bool, maxThreads)
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs[i] = err
				return
			}
			if !forget {
				outs[i] = f
			}
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	if err = errors.Join(errs...); err != nil {
		return nil, err
	}
	return outs, nil
}

// Wraps materialized frames into promises
func Promises(fs []*frame.Frame) []Promise {
	outs := make([]Promise, len(fs))
	for i, f := range fs {
		theF := f
		outs[i] = func() (*frame.Frame, error) { return theF, nil }
	}
	return outs
}

// An general frame processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// A unary frame processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *frame.Frame, c *Context) (fOut *frame.Frame, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *frame.Frame, c *Context) (fOut *frame.Frame, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("unary operator %s with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *frame.Frame, err error) {
		if f, err = in(); err != nil { // materialize input promise
			return nil, err
		}
		return op.Apply(f, c) // apply unary operator
	}
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) { // relative paths only
		return false
	}
	if strings.Contains(p, "..") { // no going outside the tree
		return false
	}
	return true
}

// Checks a file name against the sandbox restrictions of the context
func (c *Context) CheckPath(p string) error {
	if c.Sandboxed && !isPathAllowed(p) {
		return fmt.Errorf("file name %s outside current directory tree, aborting", p)
	}
	return nil
}

// Expands %d in a file name pattern with the given frame ID
func ExpandPattern(pattern string, id int) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	if op.Type == "" {
		op.Type = "seq"
	}

	op.Steps = nil
	for _, raw := range op.StepsRaw {
		var step OpBase
		if err := json.Unmarshal(raw, &step); err != nil {
			return err
		}

		factory := GetOperatorFactory(step.Type)
		if factory == nil {
			return fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw))
		}
		i := factory()
		if err := json.Unmarshal(raw, i); err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	op.Active = len(op.Steps) > 0
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
	op.Active = len(op.Steps) > 0
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	steps := op.Steps
	if steps == nil {
		steps = []Operator{}
	}
	inner, err = json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

// Inactive steps are skipped
func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	if steps[0].IsActive() {
		if ins, err = steps[0].MakePromises(ins, c); err != nil {
			return nil, err
		}
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Parses a JSON pipeline description into a sequence of operators
func ParsePipeline(data []byte) (*OpSequence, error) {
	seq := NewOpSequenceDefault()
	if err := json.Unmarshal(data, seq); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if len(seq.Steps) == 0 {
		return nil, errors.New("pipeline has no steps")
	}
	return seq, nil
}

// Runs a sequence of operators to completion, returning the materialized outputs
func Run(seq *OpSequence, c *Context) ([]*frame.Frame, error) {
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return nil, err
	}
	return MaterializeAll(promises, c.MaxThreads, false)
}

// Parses a JSON pipeline description, and runs it to completion
func RunJSON(data []byte, c *Context) ([]*frame.Frame, error) {
	seq, err := ParsePipeline(data)
	if err != nil {
		return nil, err
	}
	return Run(seq, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator        `json:"-"`
	OperationRaw json.RawMessage `json:"operation"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.Operation = nil
	if len(op.OperationRaw) > 0 && string(op.OperationRaw) != "null" {
		var base OpBase
		if err := json.Unmarshal(op.OperationRaw, &base); err != nil {
			return err
		}
		factory := GetOperatorFactory(base.Type)
		if factory == nil {
			return fmt.Errorf("unknown operator type '%s' in forEach", base.Type)
		}
		inner := factory()
		if err := json.Unmarshal(op.OperationRaw, inner); err != nil {
			return err
		}
		op.Operation = inner
	}
	op.Active = op.Operation != nil
	return nil
}

// Marshals the operator with its embedded operation
func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		Active    bool     `json:"active"`
		Operation Operator `json:"operation"`
	}{op.Type, op.Active, op.Operation})
}

func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}

// Tells whether a JSON object contains the given top-level key
func hasKey(data []byte, key string) bool {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
