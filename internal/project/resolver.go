// Package project resolves project references to registry project ids.
package project

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
)

// Cache maps normalized project references to ids. Entries are written
// once and never invalidated; a cache lives for one command invocation.
// It is not safe for concurrent use.
type Cache struct {
	ids map[string]int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{ids: make(map[string]int64)}
}

// Get returns the cached id for a normalized reference.
func (c *Cache) Get(ref string) (int64, bool) {
	id, ok := c.ids[ref]
	return id, ok
}

// Put records the id for a normalized reference. An existing entry is kept.
func (c *Cache) Put(ref string, id int64) {
	if _, ok := c.ids[ref]; !ok {
		c.ids[ref] = id
	}
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	return len(c.ids)
}

// Getter is the subset of the HTTP gateway the resolver needs.
type Getter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Resolver maps project references to ids through a Cache.
type Resolver struct {
	client Getter
	urls   *client.URLs
	cache  *Cache
	logger zerolog.Logger
}

// NewResolver creates a resolver. A nil cache gets a fresh one.
func NewResolver(c Getter, urls *client.URLs, cache *Cache, logger zerolog.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{client: c, urls: urls, cache: cache, logger: logger}
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the id of the project whose path matches ref
// case-insensitively. A cache miss costs one listing request; a failed
// request is returned as is, without retry.
func (r *Resolver) Resolve(ctx context.Context, ref string) (int64, error) {
	norm, err := core.NormalizeRef(ref)
	if err != nil {
		return 0, err
	}
	if id, ok := r.cache.Get(norm); ok {
		return id, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil && id > 0 {
		r.cache.Put(norm, id)
		return id, nil
	}

	var projects []core.Project
	if err := r.client.GetJSON(ctx, r.urls.Projects(), &projects); err != nil {
		return 0, fmt.Errorf("listing projects: %w", err)
	}

	for _, p := range projects {
		if strings.ToLower(p.PathWithNamespace) == norm {
			r.cache.Put(norm, p.ID)
			r.logger.Debug().Str("project", norm).Int64("id", p.ID).Msg("resolved project")
			return p.ID, nil
		}
	}
	return 0, &core.ResolutionError{Ref: ref}
}
