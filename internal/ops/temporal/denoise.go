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

// Package temporal provides the motion-compensated temporal denoising operator
// for frame pipelines, together with a registry of motion estimators and
// resamplers selectable by name.
package temporal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mlnoga/mctf/internal/denoise"
	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/ops"
	"github.com/mlnoga/mctf/internal/warp"
)

// Creates a motion estimator from the given configuration
type EstimatorFactory func(c *denoise.Config) flow.Estimator

// Creates a resampler for the given thread budget
type ResamplerFactory func(maxThreads int) warp.Resampler

var (
	estimators = map[string]EstimatorFactory{
		"hornSchunck": func(c *denoise.Config) flow.Estimator {
			hs := c.HornSchunck
			return &hs
		},
		"zero": func(c *denoise.Config) flow.Estimator { return &flow.Constant{} },
	}
	resamplers = map[string]ResamplerFactory{
		"bilinear": func(maxThreads int) warp.Resampler { return &warp.Bilinear{MaxThreads: maxThreads} },
	}
)

// Registers a named estimator. Panics on duplicates
func RegisterEstimator(name string, f EstimatorFactory) {
	if _, ok := estimators[name]; ok {
		panic(fmt.Sprintf("error: re-registering estimator %s\n", name))
	}
	estimators[name] = f
}

// Registers a named resampler. Panics on duplicates
func RegisterResampler(name string, f ResamplerFactory) {
	if _, ok := resamplers[name]; ok {
		panic(fmt.Sprintf("error: re-registering resampler %s\n", name))
	}
	resamplers[name] = f
}

// Names of all registered estimators, sorted
func EstimatorNames() []string { return sortedKeys(estimators) }

// Names of all registered resamplers, sorted
func ResamplerNames() []string { return sortedKeys(resamplers) }

func sortedKeys[V any](m map[string]V) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// Looks up the named estimator and creates it for the given configuration
func NewEstimator(name string, c *denoise.Config) (flow.Estimator, error) {
	f, ok := estimators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown estimator %q, have %v", denoise.ErrInvalidInput, name, EstimatorNames())
	}
	return f(c), nil
}

// Looks up the named resampler and creates it
func NewResampler(name string, maxThreads int) (warp.Resampler, error) {
	f, ok := resamplers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resampler %q, have %v", denoise.ErrInvalidInput, name, ResamplerNames())
	}
	return f(maxThreads), nil
}

// Denoises a sequence of frames. Takes n inputs in temporal order, produces n outputs
type OpDenoise struct {
	ops.OpBase
	Config    denoise.Config `json:"config"`
	Estimator string         `json:"estimator"`
	Resampler string         `json:"resampler"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDenoiseDefault() }) } // register the operator for JSON decoding

func NewOpDenoiseDefault() *OpDenoise { return NewOpDenoise(denoise.DefaultConfig(), "hornSchunck", "bilinear") }

func NewOpDenoise(c denoise.Config, estimator, resampler string) *OpDenoise {
	return &OpDenoise{
		OpBase:    ops.OpBase{Type: "denoise", Active: true},
		Config:    c,
		Estimator: estimator,
		Resampler: resampler,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDenoise) UnmarshalJSON(data []byte) error {
	type defaults OpDenoise
	def := defaults(*NewOpDenoiseDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpDenoise(def)
	return nil
}

// All outputs share one materialization of the inputs and one engine run
func (op *OpDenoise) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator needs inputs", op.Type)
	}
	if err := op.Config.Validate(); err != nil {
		return nil, err
	}
	if op.Config.FlowOut != "" {
		if err := c.CheckPath(op.Config.FlowOut); err != nil {
			return nil, err
		}
	}

	var once sync.Once
	var results []*frame.Frame
	var runErr error
	run := func() {
		var fs []*frame.Frame
		if fs, runErr = ops.MaterializeAll(ins, c.MaxThreads, false); runErr != nil {
			return
		}
		results, runErr = op.Apply(fs, c)
	}

	outs = make([]ops.Promise, len(ins))
	for i := range ins {
		i := i
		outs[i] = func() (*frame.Frame, error) {
			once.Do(run)
			if runErr != nil {
				return nil, runErr
			}
			return results[i], nil
		}
	}
	return outs, nil
}

// Denoises the given frames in temporal order
func (op *OpDenoise) Apply(fs []*frame.Frame, c *ops.Context) ([]*frame.Frame, error) {
	cfg := op.Config
	if cfg.MaxThreads <= 0 || cfg.MaxThreads > c.MaxThreads {
		cfg.MaxThreads = c.MaxThreads
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = c.WorkMB
	}
	est, err := NewEstimator(op.Estimator, &cfg)
	if err != nil {
		return nil, err
	}
	res, err := NewResampler(op.Resampler, resamplerThreads(fs, cfg))
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "Using %s motion estimation and %s resampling\n", op.Estimator, op.Resampler)
	return denoise.Denoise(fs, cfg, est, res, c.Log)
}

// Each concurrent reference worker resamples with its share of the thread budget
func resamplerThreads(fs []*frame.Frame, cfg denoise.Config) int {
	if len(fs) == 0 {
		return 1
	}
	_, bandThreads := denoise.WorkerThreads(fs[0].Width, fs[0].Height, len(fs), cfg.Radius, cfg.MemoryMB, cfg.MaxThreads)
	return bandThreads
}
