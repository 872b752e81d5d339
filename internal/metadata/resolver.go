package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// Resolver defines the interface for resolving the off-chain metadata of a token
//
//go:generate mockgen -source=resolver.go -destination=../mocks/metadata_resolver.go -package=mocks -mock_names=Resolver=MockMetadataResolver
type Resolver interface {
	// Resolve returns the metadata of (contractAddress, tokenID), nil when the token has none
	Resolve(ctx context.Context, contractAddress string, tokenID string) (*domain.Metadata, error)
}

// Config configures the file resolver
type Config struct {
	// Dir is the root of the per-network metadata files
	Dir string
	// Network selects the sub directory, e.g. "root" or "porcini"
	Network string
	// TTL bounds how long a contract file (or its absence) is cached
	TTL time.Duration
	// CacheSize is the number of contracts kept in the cache
	CacheSize int
}

// fileEntry is one element of a metadata file
type fileEntry struct {
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	AnimationURL string            `json:"animation_url"`
	Attributes   []json.RawMessage `json:"attributes"`
	TokenID      json.RawMessage   `json:"tokenId"`
}

// contractMetadata is the parsed metadata file of one contract keyed by token id.
// An empty map records a missing file.
type contractMetadata map[string]domain.Metadata

type fileResolver struct {
	cfg   Config
	fs    adapter.FileSystem
	cache *expirable.LRU[string, contractMetadata]
	group singleflight.Group
}

// NewFileResolver creates a resolver reading <dir>/<network>/<ChecksumAddress>.json files.
// Each file is a JSON array of {name, image, animation_url, attributes, tokenId}.
func NewFileResolver(cfg Config, fs adapter.FileSystem) Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	return &fileResolver{
		cfg:   cfg,
		fs:    fs,
		cache: expirable.NewLRU[string, contractMetadata](cfg.CacheSize, nil, cfg.TTL),
	}
}

func (r *fileResolver) Resolve(ctx context.Context, contractAddress string, tokenID string) (*domain.Metadata, error) {
	address := domain.NormalizeAddress(contractAddress)

	entries, ok := r.cache.Get(address)
	if !ok {
		v, err, _ := r.group.Do(address, func() (interface{}, error) {
			return r.load(ctx, address)
		})
		if err != nil {
			return nil, err
		}
		entries = v.(contractMetadata)
	}

	metadata, ok := entries[tokenID]
	if !ok {
		return nil, nil
	}
	return &metadata, nil
}

// load reads and caches the metadata file of a contract
func (r *fileResolver) load(ctx context.Context, address string) (contractMetadata, error) {
	path := filepath.Join(r.cfg.Dir, r.cfg.Network, address+".json")

	data, err := r.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Cache the miss so the disk is not hit again until the TTL expires
			r.cache.Add(address, contractMetadata{})
			return contractMetadata{}, nil
		}
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}

	var raw []fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.WarnCtx(ctx, "Invalid metadata file, caching as empty", zap.String("path", path), zap.Error(err))
		r.cache.Add(address, contractMetadata{})
		return contractMetadata{}, nil
	}

	entries := make(contractMetadata, len(raw))
	for _, e := range raw {
		id := strings.Trim(string(e.TokenID), `" `)
		if id == "" || id == "null" {
			continue
		}
		entries[id] = domain.Metadata{
			Name:         e.Name,
			Image:        e.Image,
			AnimationURL: e.AnimationURL,
			Attributes:   e.Attributes,
		}
	}

	r.cache.Add(address, entries)
	logger.DebugCtx(ctx, "Loaded metadata file", zap.String("path", path), zap.Int("tokens", len(entries)))

	return entries, nil
}
