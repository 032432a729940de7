// Package memstore is an in-memory stand-in for the Mongo stores, used by
// service tests that should not need a database. It returns the same
// sentinel errors as the real stores.
package memstore

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/groupvault/internal/domain/models"
)

// DB holds every collection. The typed views (Categories, Tags, ...) share it.
type DB struct {
	mu sync.Mutex

	categories map[int64]models.Category
	tags       map[int64]models.Tag
	resources  map[int64]models.Resource
	edits      []models.ResourceEdit
	roles      map[[2]int64]models.RoleEntry
	secrets    []models.BootstrapSecret
	seq        map[string]int64
	failures   map[string][]error

	// Now is the clock used for timestamps.
	Now func() time.Time
}

func New() *DB {
	return &DB{
		categories: map[int64]models.Category{},
		tags:       map[int64]models.Tag{},
		resources:  map[int64]models.Resource{},
		roles:      map[[2]int64]models.RoleEntry{},
		seq:        map[string]int64{},
		failures:   map[string][]error{},
		Now:        time.Now,
	}
}

// FailNext makes the next call of op (e.g. "resources.HardDelete") return err.
// Calls queue up: FailNext twice fails the next two calls.
func (d *DB) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], err)
}

// fail must be called with mu held.
func (d *DB) fail(op string) error {
	q := d.failures[op]
	if len(q) == 0 {
		return nil
	}
	d.failures[op] = q[1:]
	return q[0]
}

func (d *DB) next(name string) int64 {
	d.seq[name]++
	return d.seq[name]
}

func (d *DB) now() time.Time { return d.Now().UTC() }

// Categories, Tags, Resources, Edits and Roles are views over d.
func (d *DB) Categories() *Categories { return &Categories{d} }
func (d *DB) Tags() *Tags             { return &Tags{d} }
func (d *DB) Resources() *Resources   { return &Resources{d} }
func (d *DB) Edits() *Edits           { return &Edits{d} }
func (d *DB) Roles() *Roles           { return &Roles{d} }
func (d *DB) Secrets() *Secrets       { return &Secrets{d} }

// Resource returns a stored row regardless of state, for assertions.
func (d *DB) Resource(id int64) (models.Resource, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[id]
	return copyResource(r), ok
}

// EditCount returns how many edit rows exist.
func (d *DB) EditCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.edits)
}

func matches(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func copyResource(r models.Resource) models.Resource {
	if r.Tags != nil {
		r.Tags = append([]models.ResourceTag(nil), r.Tags...)
	}
	if r.CategoryID != nil {
		v := *r.CategoryID
		r.CategoryID = &v
	}
	return r
}

func sortByNameCI[T any](rows []T, key func(T) (string, int64)) {
	sort.Slice(rows, func(i, j int) bool {
		ni, ii := key(rows[i])
		nj, ij := key(rows[j])
		if ni != nj {
			return ni < nj
		}
		return ii < ij
	})
}

// Tx runs fn and restores every collection if it returns an error, standing
// in for a Mongo transaction. Concurrent writers are not isolated.
func (d *DB) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	snap := d.snapshot()
	d.mu.Unlock()

	if err := fn(ctx); err != nil {
		d.mu.Lock()
		d.restore(snap)
		d.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	categories map[int64]models.Category
	tags       map[int64]models.Tag
	resources  map[int64]models.Resource
	edits      []models.ResourceEdit
	roles      map[[2]int64]models.RoleEntry
	secrets    []models.BootstrapSecret
	seq        map[string]int64
}

func (d *DB) snapshot() snapshot {
	s := snapshot{
		categories: make(map[int64]models.Category, len(d.categories)),
		tags:       make(map[int64]models.Tag, len(d.tags)),
		resources:  make(map[int64]models.Resource, len(d.resources)),
		edits:      append([]models.ResourceEdit(nil), d.edits...),
		roles:      make(map[[2]int64]models.RoleEntry, len(d.roles)),
		secrets:    append([]models.BootstrapSecret(nil), d.secrets...),
		seq:        make(map[string]int64, len(d.seq)),
	}
	for k, v := range d.categories {
		s.categories[k] = v
	}
	for k, v := range d.tags {
		s.tags[k] = v
	}
	for k, v := range d.resources {
		s.resources[k] = copyResource(v)
	}
	for k, v := range d.roles {
		s.roles[k] = v
	}
	for k, v := range d.seq {
		s.seq[k] = v
	}
	return s
}

func (d *DB) restore(s snapshot) {
	d.categories = s.categories
	d.tags = s.tags
	d.resources = s.resources
	d.edits = s.edits
	d.roles = s.roles
	d.secrets = s.secrets
	d.seq = s.seq
}
