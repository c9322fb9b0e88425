package vm

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the subset of Config a TOML file may override,
// the same decode-into-a-plain-struct shape manifest.Load uses for
// maggie.toml.
type fileConfig struct {
	StackSize    int      `toml:"stackSize"`
	InitGC       int      `toml:"initGC"`
	HeapGrowRate float64  `toml:"heapGrowRate"`
	ImportPaths  []string `toml:"importPaths"`
	TraceSink    string   `toml:"traceSink"`
	MetricsSink  string   `toml:"metricsSink"`
}

// LoadConfigFile reads a TOML file at path and layers it on top of
// DefaultConfig: any key absent from the file keeps its default
// rather than being zeroed out. ErrorCallback is never set by a file
// and must be wired programmatically afterward.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("vm: cannot read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("vm: parse error in %s: %w", path, err)
	}

	if fc.StackSize != 0 {
		cfg.StackSize = fc.StackSize
	}
	if fc.InitGC != 0 {
		cfg.InitGC = fc.InitGC
	}
	if fc.HeapGrowRate != 0 {
		cfg.HeapGrowRate = fc.HeapGrowRate
	}
	if len(fc.ImportPaths) > 0 {
		cfg.ImportPaths = fc.ImportPaths
	}
	cfg.TraceSink = fc.TraceSink
	cfg.MetricsSink = fc.MetricsSink

	return cfg, nil
}
