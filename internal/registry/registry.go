// Package registry implements the generic path-tree entry catalog shared by
// the tool and capability registries (spec §4.3). It is grounded on the
// CompositeToolProvider / RegistryToolProvider split in the original
// tool_provider.rs: a Registry holds one category of entries and can be
// composed with others into a CompositeProvider that merges their listings
// and category trees transparently to callers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentmesh/core/internal/apperr"
)

// ErrNotFound is returned when an entry id has no registration.
var ErrNotFound = errors.New("registry: entry not found")

// MatchType selects how Search compares the query against an entry.
type MatchType string

const (
	// MatchExact requires the query to equal the id, name, or full
	// category path exactly (case-insensitive).
	MatchExact MatchType = "exact"
	// MatchFuzzy requires the query to be a substring of the id, name,
	// description, or category path (case-insensitive).
	MatchFuzzy MatchType = "fuzzy"
)

// Entry is the shape a Registry entry must satisfy to support search and
// category-tree listing. domain.Tool and domain.Capability both satisfy it
// via small adapter methods in internal/toolcat.
type Entry interface {
	EntryID() string
	EntryName() string
	EntryDescription() string
	EntryCategory() []string
}

// Provider is a read-only view over a set of entries, composable so callers
// never need to know whether an entry came from this Registry or another.
type Provider[T Entry] interface {
	ListAll() []T
	Search(query string, match MatchType) []T
	ListByCategory(category string, recursive bool) []T
	CategoryTree() *CategoryNode
}

// CategoryNode is one node of a merged category tree, mirroring
// CategoryNodeInfo from the original source.
type CategoryNode struct {
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	EntryCount int             `json:"entry_count"`
	Children   []*CategoryNode `json:"children,omitempty"`
}

func newCategoryNode(name, path string) *CategoryNode {
	return &CategoryNode{Name: name, Path: path}
}

func (n *CategoryNode) childNamed(name string) *CategoryNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Registry is a concrete, mutable catalog of entries of one kind (tools or
// capabilities), keyed by id and indexed by category path.
type Registry[T Entry] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty Registry.
func New[T Entry]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register adds or replaces the entry under its own id.
func (r *Registry[T]) Register(entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.EntryID()] = entry
}

// Unregister removes an entry by id. Idempotent.
func (r *Registry[T]) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns the entry registered under id.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	return e, nil
}

// ListAll returns every registered entry, sorted by id for deterministic
// iteration order.
func (r *Registry[T]) ListAll() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID() < out[j].EntryID() })
	return out
}

// Search filters ListAll by MatchType, matching the RegistryToolProvider
// semantics from the original source exactly: Exact compares id, name, or
// the full category path; Fuzzy additionally checks substring containment
// and also searches the description.
func (r *Registry[T]) Search(query string, match MatchType) []T {
	q := strings.ToLower(query)
	all := r.ListAll()
	out := make([]T, 0, len(all))
	for _, e := range all {
		id := strings.ToLower(e.EntryID())
		name := strings.ToLower(e.EntryName())
		path := strings.ToLower(strings.Join(e.EntryCategory(), "/"))

		var matched bool
		switch match {
		case MatchExact:
			matched = id == q || name == q || path == q
		default: // MatchFuzzy
			desc := strings.ToLower(e.EntryDescription())
			matched = strings.Contains(id, q) || strings.Contains(name, q) ||
				strings.Contains(desc, q) || strings.Contains(path, q)
		}
		if matched {
			out = append(out, e)
		}
	}
	return out
}

// FindByPath returns every entry whose category is exactly path, or, when
// recursive is true, every entry whose category starts with path.
func (r *Registry[T]) FindByPath(path string, recursive bool) []T {
	segments := splitPath(path)
	all := r.ListAll()
	out := make([]T, 0, len(all))
	for _, e := range all {
		cat := e.EntryCategory()
		if recursive {
			if hasPrefix(cat, segments) {
				out = append(out, e)
			}
		} else if samePath(cat, segments) {
			out = append(out, e)
		}
	}
	return out
}

// FindDirectByPath returns only the entries registered exactly at path,
// equivalent to FindByPath(path, false).
func (r *Registry[T]) FindDirectByPath(path string) []T {
	return r.FindByPath(path, false)
}

// ListByCategory implements Provider.
func (r *Registry[T]) ListByCategory(category string, recursive bool) []T {
	return r.FindByPath(category, recursive)
}

// ListSubPaths returns the distinct immediate child path segments beneath
// path across all registered entries.
func (r *Registry[T]) ListSubPaths(path string) []string {
	prefix := splitPath(path)
	seen := map[string]struct{}{}
	for _, e := range r.ListAll() {
		cat := e.EntryCategory()
		if !hasPrefix(cat, prefix) || len(cat) <= len(prefix) {
			continue
		}
		seen[cat[len(prefix)]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CategoryTree builds the full category tree for this registry's entries,
// counting each entry on every node along its category path, the root
// included, so a node's EntryCount covers its whole subtree
// (add_tool_to_tree in the original source).
func (r *Registry[T]) CategoryTree() *CategoryNode {
	root := newCategoryNode("root", "")
	for _, e := range r.ListAll() {
		addToTree(root, e.EntryCategory())
	}
	return root
}

func addToTree(root *CategoryNode, segments []string) {
	current := root
	current.EntryCount++
	path := ""
	for _, seg := range segments {
		if path != "" {
			path += "/"
		}
		path += seg

		child := current.childNamed(seg)
		if child == nil {
			child = newCategoryNode(seg, path)
			current.Children = append(current.Children, child)
		}
		current = child
		current.EntryCount++
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func hasPrefix(cat, prefix []string) bool {
	if len(cat) < len(prefix) {
		return false
	}
	for i, seg := range prefix {
		if cat[i] != seg {
			return false
		}
	}
	return true
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
