package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v8"
	"github.com/semafind/vamanadb/httpapi"
	"github.com/semafind/vamanadb/models"
	"gopkg.in/yaml.v3"
)

// ---------------------------

const VAMANADB_CONFIG = "VAMANADB_CONFIG"

type StorageConfig struct {
	// One of mem, disk or tiered.
	Mode string `yaml:"mode" envDefault:"mem"`
	// Fixed vector dimensionality of the store.
	VectorSize uint16 `yaml:"vectorSize" envDefault:"2"`
	IndexPath  string `yaml:"indexPath" envDefault:"dump/graph.index"`
	// Reserved for a future delete pass.
	FreeListPath string `yaml:"freeListPath" envDefault:"dump/graph.free"`
	// Promotion threshold of the tiered store's writable memtable, 0 uses
	// the default.
	MemtableThreshold int `yaml:"memtableThreshold" envDefault:"0"`
	// Payload storage, bbolt file path or badger directory.
	PayloadBackend string `yaml:"payloadBackend" envDefault:"bbolt"`
	PayloadPath    string `yaml:"payloadPath" envDefault:""`
}

func (c StorageConfig) Validate() error {
	switch c.Mode {
	case "mem", "disk", "tiered":
	default:
		return fmt.Errorf("unknown storage mode %s", c.Mode)
	}
	switch c.PayloadBackend {
	case "bbolt", "badger":
	default:
		return fmt.Errorf("unknown payload backend %s", c.PayloadBackend)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("vectorSize must be at least 1")
	}
	return nil
}

type ConfigMap struct {
	// Global debug flag
	Debug bool `yaml:"debug" envDefault:"false"`
	// Pretty log output
	PrettyLogOutput bool `yaml:"prettyLogOutput" envDefault:"false"`
	// HTTP Parameters
	HttpApi httpapi.HttpApiConfig `yaml:"httpApi" envPrefix:"HTTP_"`
	// Storage parameters
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	// Graph index parameters
	Graph models.GraphParameters `yaml:"graph" envPrefix:"GRAPH_"`
}

// LoadConfig reads the yaml file named by the VAMANADB_CONFIG environment
// variable. Without the variable the configuration is assembled from
// VAMANADB_ prefixed environment variables and defaults instead.
func LoadConfig() (ConfigMap, error) {
	configMap := ConfigMap{}
	cFilePath, ok := os.LookupEnv(VAMANADB_CONFIG)
	if !ok {
		opts := env.Options{Prefix: "VAMANADB_", UseFieldNameByDefault: true}
		if err := env.ParseWithOptions(&configMap, opts); err != nil {
			return configMap, fmt.Errorf("failed to parse environment config: %w", err)
		}
	} else {
		// The yaml file may omit sections, start from sensible defaults.
		configMap.Graph = models.DefaultGraphParameters()
		configMap.Storage = StorageConfig{Mode: "mem", VectorSize: 2, PayloadBackend: "bbolt"}
		cFile, err := os.Open(cFilePath)
		if err != nil {
			return configMap, fmt.Errorf("failed to open config file %s: %w", cFilePath, err)
		}
		defer cFile.Close()
		decoder := yaml.NewDecoder(cFile)
		if err := decoder.Decode(&configMap); err != nil {
			return configMap, fmt.Errorf("failed to parse config file %s: %w", cFilePath, err)
		}
	}
	// ---------------------------
	if err := configMap.Storage.Validate(); err != nil {
		return configMap, fmt.Errorf("invalid storage config: %w", err)
	}
	if err := configMap.Graph.Validate(); err != nil {
		return configMap, fmt.Errorf("invalid graph config: %w", err)
	}
	return configMap, nil
}
