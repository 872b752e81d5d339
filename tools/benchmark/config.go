package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// BenchmarkConfig represents the configuration file structure
type BenchmarkConfig struct {
	Collections    int   `json:"collections"`
	TokensPerNft   int   `json:"tokens_per_nft"`
	SftCollections int   `json:"sft_collections"`
	Transfers      int   `json:"transfers"`
	Holders        int   `json:"holders"`
	FetchLimit     int   `json:"fetch_limit"`
	SubBatchSize   int   `json:"sub_batch_size"`
	Runs           int   `json:"runs"`
	Seed           int64 `json:"seed"`
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (*BenchmarkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg BenchmarkConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(path string, cfg *BenchmarkConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// mergeUnset copies file values into the fields whose flag was not set explicitly
func (cfg *BenchmarkConfig) mergeUnset(file *BenchmarkConfig, set map[string]bool) {
	if !set["collections"] && file.Collections != 0 {
		cfg.Collections = file.Collections
	}
	if !set["tokens"] && file.TokensPerNft != 0 {
		cfg.TokensPerNft = file.TokensPerNft
	}
	if !set["sft-collections"] && file.SftCollections != 0 {
		cfg.SftCollections = file.SftCollections
	}
	if !set["transfers"] && file.Transfers != 0 {
		cfg.Transfers = file.Transfers
	}
	if !set["holders"] && file.Holders != 0 {
		cfg.Holders = file.Holders
	}
	if !set["fetch-limit"] && file.FetchLimit != 0 {
		cfg.FetchLimit = file.FetchLimit
	}
	if !set["sub-batch"] && file.SubBatchSize != 0 {
		cfg.SubBatchSize = file.SubBatchSize
	}
	if !set["runs"] && file.Runs != 0 {
		cfg.Runs = file.Runs
	}
	if !set["seed"] && file.Seed != 0 {
		cfg.Seed = file.Seed
	}
}
