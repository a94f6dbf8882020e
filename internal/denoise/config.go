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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/mctf/internal/flow"
	"gopkg.in/yaml.v2"
)

// Signals an empty sequence, inconsistent frame shapes or invalid parameters
var ErrInvalidInput = errors.New("invalid input")

// Denoising parameters
type Config struct {
	Radius     int    `json:"radius"     yaml:"radius"`     // Temporal window radius N, contributors are r-N..r+N
	Threshold  int    `json:"threshold"  yaml:"threshold"`  // Outlier gate on the weighted channel difference
	MaxThreads int    `json:"maxThreads" yaml:"maxThreads"` // Concurrency limit, 0 means GOMAXPROCS
	MemoryMB   int    `json:"memoryMB"   yaml:"memoryMB"`   // Memory budget for reference workers, 0 means physical memory
	SmoothFlow bool   `json:"smoothFlow" yaml:"smoothFlow"` // Apply a 3x3 median to every estimated field
	InvertFlow bool   `json:"invertFlow" yaml:"invertFlow"` // Negate estimated fields before storing them
	FlowOut    string `json:"flowOut"    yaml:"flowOut"`    // Pattern with %d for flow visualisations, empty disables

	HornSchunck flow.HornSchunck `json:"hornSchunck" yaml:"hornSchunck"` // Parameters of the default estimator
}

func DefaultConfig() Config {
	return Config{
		Radius:      4,
		Threshold:   40,
		HornSchunck: *flow.NewHornSchunckDefault(),
	}
}

// Checks parameter ranges
func (c *Config) Validate() error {
	if c.Radius < 0 {
		return fmt.Errorf("%w: negative radius %d", ErrInvalidInput, c.Radius)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold %d", ErrInvalidInput, c.Threshold)
	}
	if c.MaxThreads < 0 || c.MemoryMB < 0 {
		return fmt.Errorf("%w: negative resource limit", ErrInvalidInput)
	}
	if c.FlowOut != "" && !strings.Contains(c.FlowOut, "%d") {
		return fmt.Errorf("%w: flow output pattern %q lacks %%d", ErrInvalidInput, c.FlowOut)
	}
	return nil
}

// Unmarshal the type from JSON with default values for missing entries
func (c *Config) UnmarshalJSON(data []byte) error {
	type defaults Config
	def := defaults(DefaultConfig())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*c = Config(def)
	return nil
}

// Loads a configuration from a YAML or JSON file, chosen by suffix.
// Missing entries keep their default values
func LoadConfig(fileName string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(fileName)
	if err != nil {
		return c, err
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	case ".json":
		err = json.Unmarshal(data, &c)
	default:
		return c, fmt.Errorf("unknown config file suffix: %s", fileName)
	}
	if err != nil {
		return c, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return c, c.Validate()
}
