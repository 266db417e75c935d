package main

import (
	"context"
	"time"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/config"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/revstore/gitstore"
	"go.skia.org/revgraph/go/revstore/sqlstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
	"go.skia.org/revgraph/go/util"
)

const (
	storeKindSQLite = "sqlite"
	storeKindGit    = "git"

	defaultBusyTimeout = 5 * time.Second
)

// StoreConfig says where the revisions live.
type StoreConfig struct {
	// Kind is "sqlite" or "git".
	Kind        string          `json:"kind"`
	Path        string          `json:"path"`
	BusyTimeout config.Duration `json:"busy_timeout" optional:"true"`
}

// BranchConfig describes the branch the commands work on.
type BranchConfig struct {
	Name string `json:"name"`
	// Tip defaults to HEAD for git stores.
	Tip string `json:"tip" optional:"true"`
	// Revno is the revno recorded for Tip, if known.
	Revno           *int              `json:"revno" optional:"true"`
	CalculateRevnos bool              `json:"calculate_revnos"`
	Tags            map[string]string `json:"tags" optional:"true"`
}

// LogConfig holds defaults for the log command.
type LogConfig struct {
	Formatter string `json:"formatter" optional:"true"`
	Levels    *int   `json:"levels" optional:"true"`
	BatchCap  int    `json:"batch_cap" optional:"true"`
}

// Config is the contents of the JSON5 config files.
type Config struct {
	Store  StoreConfig  `json:"store"`
	Branch BranchConfig `json:"branch"`
	// ParentCacheSize is the number of parent lookups kept in memory. 0
	// disables the cache.
	ParentCacheSize int       `json:"parent_cache_size" optional:"true"`
	Log             LogConfig `json:"log" optional:"true"`
	// Keyring is an armored OpenPGP keyring used to verify signatures.
	Keyring string `json:"keyring" optional:"true"`
}

func loadConfig(paths []string) (*Config, error) {
	var cfg Config
	if err := config.LoadFromJSON5(&cfg, paths...); err != nil {
		return nil, err
	}
	if !util.In(cfg.Store.Kind, []string{storeKindSQLite, storeKindGit}) {
		return nil, skerr.Fmt("unknown store kind %q", cfg.Store.Kind)
	}
	if cfg.Store.Kind == storeKindSQLite && cfg.Branch.Tip == "" {
		return nil, skerr.Fmt("branch.tip is required for %s stores", storeKindSQLite)
	}
	return &cfg, nil
}

// repo is an opened store together with the graph and branch over it.
type repo struct {
	cfg    *Config
	store  revstore.Store
	graph  *graph.Graph
	branch *branch.Branch
	close  func() error
}

func (e *rootEnv) openRepo(ctx context.Context) (*repo, error) {
	cfg, err := loadConfig(e.configPaths)
	if err != nil {
		return nil, err
	}
	ret := &repo{cfg: cfg, close: func() error { return nil }}
	tip := revision.ID(cfg.Branch.Tip)
	switch cfg.Store.Kind {
	case storeKindSQLite:
		timeout := cfg.Store.BusyTimeout.Duration
		if timeout == 0 {
			timeout = defaultBusyTimeout
		}
		s, err := sqlstore.Open(ctx, cfg.Store.Path, timeout)
		if err != nil {
			return nil, err
		}
		ret.store = s
		ret.close = s.Close
	case storeKindGit:
		s, err := gitstore.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if tip == "" {
			if tip, err = s.Head(); err != nil {
				return nil, err
			}
		}
		ret.store = s
	}

	var parents graph.ParentsProvider = ret.store
	if cfg.ParentCacheSize > 0 {
		parents = graph.NewCachingParentsProvider(ret.store, cfg.ParentCacheSize)
	}
	ret.graph = graph.New(parents)

	revno := branch.RevnoUnknown
	if cfg.Branch.Revno != nil {
		revno = *cfg.Branch.Revno
	}
	tags := make(map[string]revision.ID, len(cfg.Branch.Tags))
	for name, id := range cfg.Branch.Tags {
		tags[name] = revision.ID(id)
	}
	ret.branch = branch.New(ret.store, ret.graph, branch.Options{
		Name:            cfg.Branch.Name,
		Tip:             tip,
		Revno:           revno,
		CalculateRevnos: cfg.Branch.CalculateRevnos,
		Tags:            tags,
	})
	sklog.Debugf("Opened %s store %s at %s", cfg.Store.Kind, cfg.Store.Path, tip)
	return ret, nil
}

// Close releases the store.
func (r *repo) Close() error {
	return r.close()
}
