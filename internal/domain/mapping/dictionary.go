package mapping

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// Scope identifies one mapping namespace.
type Scope struct {
	Platform  catalog.Platform
	Domain    catalog.DataDomain
	SubDomain string
}

// String returns a human-readable scope key
func (s Scope) String() string {
	if s.SubDomain == "" {
		return fmt.Sprintf("%s/%s", s.Platform, s.Domain)
	}
	return fmt.Sprintf("%s/%s/%s", s.Platform, s.Domain, s.SubDomain)
}

// compiledEntry pairs an entry with its compiled pattern.
type compiledEntry struct {
	entry  Entry
	re     *regexp.Regexp
	groups int // named capture groups, for specificity ordering
}

// Dictionary is an immutable snapshot of the active mapping rules for one
// scope. It is built once per ingestion run; configuration updates create
// a new snapshot rather than mutating rules in place, so concurrent
// ingestions never observe mixed rule generations.
type Dictionary struct {
	scope    Scope
	literals map[string]compiledEntry // header text -> winning rule
	patterns []compiledEntry          // ordered by precedence
}

var entryValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadDictionary compiles the given entries into a snapshot for the scope.
// Conflicting rules (same literal header, same version, different target)
// and invalid patterns are configuration errors rejected here, at load
// time, never at ingest time.
func LoadDictionary(scope Scope, entries []Entry) (*Dictionary, error) {
	d := &Dictionary{
		scope:    scope,
		literals: make(map[string]compiledEntry),
	}

	for i := range entries {
		e := entries[i]
		if e.Status != EntryStatusActive {
			continue
		}
		if e.Platform != scope.Platform || e.Domain != scope.Domain || e.SubDomain != scope.SubDomain {
			continue
		}

		if err := entryValidator.Struct(&e); err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
				"Invalid mapping entry for scope %s: %v", scope, err)
		}
		if !e.IsLiteral() && !e.IsPattern() {
			return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
				"Mapping entry in scope %s has neither header nor pattern", scope)
		}
		if e.ValueType == "" {
			e.ValueType = TypeString
		}
		if e.MinValue != "" || e.MaxValue != "" {
			if !e.ValueType.IsNumeric() {
				return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
					"Range bounds on non-numeric column %q in scope %s", e.Header, scope)
			}
			if _, _, err := e.Range(); err != nil {
				return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
					"Invalid range on column %q in scope %s: %v", e.Header, scope, err)
			}
		}
		if e.NotAfterColumn != "" && e.ValueType != TypeDate {
			return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
				"Date-ordering constraint on non-date column %q in scope %s", e.Header, scope)
		}

		if e.IsLiteral() {
			if err := d.addLiteral(e); err != nil {
				return nil, err
			}
			continue
		}

		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
				"Invalid mapping pattern %q in scope %s: %v", e.Pattern, scope, err)
		}
		groups := 0
		for _, name := range re.SubexpNames() {
			if name != "" {
				groups++
			}
		}
		d.patterns = append(d.patterns, compiledEntry{entry: e, re: re, groups: groups})
	}

	// Precedence: version desc, then more named groups, then declaration order.
	sort.SliceStable(d.patterns, func(i, j int) bool {
		a, b := d.patterns[i], d.patterns[j]
		if a.entry.Version != b.entry.Version {
			return a.entry.Version > b.entry.Version
		}
		if a.groups != b.groups {
			return a.groups > b.groups
		}
		return a.entry.Position < b.entry.Position
	})

	return d, nil
}

// addLiteral registers a literal rule, applying version precedence and
// rejecting same-version target conflicts.
func (d *Dictionary) addLiteral(e Entry) error {
	existing, ok := d.literals[e.Header]
	if !ok {
		d.literals[e.Header] = compiledEntry{entry: e}
		return nil
	}

	if existing.entry.Version == e.Version {
		if existing.entry.TargetTable != e.TargetTable || existing.entry.TargetColumn != e.TargetColumn {
			return shared.NewDomainErrorf(shared.CodeConfigurationError,
				"Conflicting mapping rules for header %q in scope %s: %s.%s vs %s.%s",
				e.Header, d.scope,
				existing.entry.TargetTable, existing.entry.TargetColumn,
				e.TargetTable, e.TargetColumn)
		}
		// Identical targets: keep the earlier declaration.
		if e.Position < existing.entry.Position {
			d.literals[e.Header] = compiledEntry{entry: e}
		}
		return nil
	}

	if e.Version > existing.entry.Version {
		d.literals[e.Header] = compiledEntry{entry: e}
	}
	return nil
}

// Scope returns the dictionary's scope
func (d *Dictionary) Scope() Scope {
	return d.scope
}

// Len returns the number of compiled rules
func (d *Dictionary) Len() int {
	return len(d.literals) + len(d.patterns)
}

// RequiredHeaders returns the literal headers whose entries are required.
// Pattern rules are never required at the header level: their presence
// depends on what metric/currency combinations a platform exports.
func (d *Dictionary) RequiredHeaders() []string {
	var out []string
	for h, ce := range d.literals {
		if ce.entry.Required {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// MissingRequiredHeaders reports required literal headers absent from the
// given file headers.
func (d *Dictionary) MissingRequiredHeaders(headers []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}
	var missing []string
	for _, h := range d.RequiredHeaders() {
		if _, ok := present[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}
