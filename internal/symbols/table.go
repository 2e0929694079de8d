package symbols

import (
	"strings"
	"sync"

	"tradeflow/logger"
)

// Table translates between canonical BASEQUOTE symbols and a venue's own
// notation. Lookups outside the table fall back to a venue specific rule, or
// to passthrough with a single warning per unknown symbol.
type Table struct {
	venue       string
	toVenue     map[string]string
	toCanonical map[string]string
	venueRule   func(string) string
	canonRule   func(string) string

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewTable builds a table from canonical -> venue pairs. The reverse mapping
// is derived automatically.
func NewTable(venue string, pairs map[string]string, venueRule, canonRule func(string) string) *Table {
	toVenue := make(map[string]string, len(pairs))
	toCanonical := make(map[string]string, len(pairs))
	for canonical, native := range pairs {
		toVenue[canonical] = native
		toCanonical[native] = canonical
	}
	return &Table{
		venue:       venue,
		toVenue:     toVenue,
		toCanonical: toCanonical,
		venueRule:   venueRule,
		canonRule:   canonRule,
		warned:      make(map[string]struct{}),
	}
}

// ToVenue converts a canonical symbol into the venue's notation.
func (t *Table) ToVenue(canonical string) string {
	canonical = strings.ToUpper(strings.TrimSpace(canonical))
	if native, ok := t.toVenue[canonical]; ok {
		return native
	}
	if t.venueRule != nil {
		return t.venueRule(canonical)
	}
	t.warnOnce("to_venue", canonical)
	return canonical
}

// ToCanonical converts a venue symbol back into canonical form.
func (t *Table) ToCanonical(native string) string {
	native = strings.TrimSpace(native)
	if canonical, ok := t.toCanonical[native]; ok {
		return canonical
	}
	if t.canonRule != nil {
		return t.canonRule(native)
	}
	t.warnOnce("to_canonical", native)
	return strings.ToUpper(native)
}

func (t *Table) warnOnce(direction, sym string) {
	t.mu.Lock()
	key := direction + ":" + sym
	_, seen := t.warned[key]
	if !seen {
		t.warned[key] = struct{}{}
	}
	t.mu.Unlock()
	if seen {
		return
	}
	logger.GetLogger().WithVenue(t.venue).WithFields(logger.Fields{
		"symbol":    sym,
		"direction": direction,
	}).Warn("symbol not in translation table, passing through")
}
