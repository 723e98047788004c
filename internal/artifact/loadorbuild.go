package artifact

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Origin records where LoadOrBuild got its program from.
type Origin string

const (
	OriginCache     Origin = "cache"
	OriginBuilt     Origin = "built"
	OriginOptimized Origin = "optimized"
)

// Recipe describes how to produce a program on a cache miss.
type Recipe struct {
	// Name labels the program in logs.
	Name string
	// Path is the logical cache path. Empty disables caching.
	Path string
	// Refresh skips the load and always rebuilds.
	Refresh bool
	// Build constructs a fresh, unoptimized program.
	Build func(ctx context.Context) (*Program, error)
	// Optimize, when set, compiles the freshly built program.
	Optimize func(ctx context.Context, program *Program) (*Program, error)
}

// LoadOrBuild returns the cached program for recipe.Path, or builds,
// optionally optimizes and saves a new one. A failed save is logged and the
// in-memory program is still returned. A failed optimize is logged and the
// unoptimized program is returned without being saved.
func LoadOrBuild(ctx context.Context, cache *Cache, recipe Recipe) (*Program, Origin, error) {
	if recipe.Build == nil {
		return nil, "", fmt.Errorf("artifact: recipe %s has no build step", recipe.Name)
	}
	if cache == nil {
		cache = NewCache()
	}
	logger := cache.logger.With(zap.String("program", recipe.Name))

	if recipe.Path != "" && !recipe.Refresh {
		if program, ok := cache.Load(recipe.Path); ok {
			return program, OriginCache, nil
		}
	}

	program, err := recipe.Build(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("artifact: build %s: %w", recipe.Name, err)
	}
	if program == nil {
		return nil, "", fmt.Errorf("artifact: build %s returned no program", recipe.Name)
	}
	origin := OriginBuilt

	if recipe.Optimize != nil {
		optimized, optErr := recipe.Optimize(ctx, program)
		switch {
		case optErr != nil:
			logger.Warn("optimize failed, using unoptimized program", zap.Error(optErr))
			return program, origin, nil
		case optimized != nil:
			program = optimized
			origin = OriginOptimized
		}
	}

	if recipe.Path == "" {
		return program, origin, nil
	}
	if _, err := cache.Save(program, recipe.Path); err != nil {
		logger.Warn("continuing with in-memory program", zap.Error(err))
	}
	return program, origin, nil
}
