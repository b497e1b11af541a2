package cache

import (
	"fmt"
	"time"

	"github.com/dayplan/plancache/errors"
)

// Policy maps logical collections to their time-to-live. The table is
// closed: asking for a collection that has no mapping is a programming
// error and fails fast rather than silently defaulting.
type Policy struct {
	ttls map[string]time.Duration
}

// NewPolicy builds a TTL policy from a collection table.
func NewPolicy(table map[string]time.Duration) (*Policy, error) {
	if len(table) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "cache", "NewPolicy",
			"TTL table cannot be empty")
	}
	ttls := make(map[string]time.Duration, len(table))
	for name, ttl := range table {
		if ttl <= 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewPolicy",
				fmt.Sprintf("TTL for %s must be positive, got %v", name, ttl))
		}
		ttls[name] = ttl
	}
	return &Policy{ttls: ttls}, nil
}

// TTLFor returns the time-to-live for a collection. Unknown collections
// fail with a configuration error.
func (p *Policy) TTLFor(collection string) (time.Duration, error) {
	ttl, ok := p.ttls[collection]
	if !ok {
		return 0, errors.WrapInvalid(errors.ErrUnknownCollection, "cache", "TTLFor",
			fmt.Sprintf("collection %q", collection))
	}
	return ttl, nil
}

// Collections returns the names of all configured collections.
func (p *Policy) Collections() []string {
	names := make([]string, 0, len(p.ttls))
	for name := range p.ttls {
		names = append(names, name)
	}
	return names
}
