package features

import (
	"regexp"
	"sort"
	"sync"

	"github.com/banshee-data/lidarfeatures/internal/errs"
)

// featureName matches feature identifiers. Interval names produced by band
// ratios may carry signed decimal limits.
var featureName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_<>.\-]*$`)

// Catalog maps feature names to the extractor that provides them. It is safe
// for concurrent use; registrations only ever add names.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]Extractor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]Extractor)}
}

// Register adds every name the extractor provides. A name that is already
// registered, or not a valid identifier, rejects the whole registration.
func (c *Catalog) Register(x Extractor) error {
	if x == nil {
		return errs.New(errs.InvalidInput, "extractor is nil")
	}
	provides := x.Provides()
	if len(provides) == 0 {
		return errs.New(errs.InvalidInput, "extractor %s provides no features", x.Name())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range provides {
		if !featureName.MatchString(name) {
			return errs.New(errs.InvalidInput, "extractor %s: invalid feature name %q", x.Name(), name)
		}
		if _, dup := c.byName[name]; dup {
			return errs.New(errs.InvalidInput, "feature %q already registered", name)
		}
	}
	for _, name := range provides {
		c.byName[name] = x
	}
	return nil
}

// MustRegister is Register for init-time default sets.
func (c *Catalog) MustRegister(xs ...Extractor) {
	for _, x := range xs {
		if err := c.Register(x); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the extractor providing name.
func (c *Catalog) Lookup(name string) (Extractor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	x, ok := c.byName[name]
	if !ok {
		return nil, errs.New(errs.UnknownFeature, "feature %q is not registered", name)
	}
	return x, nil
}

// Names returns every registered feature name, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byName))
	for k := range c.byName {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered feature names.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
