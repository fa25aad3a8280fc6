// Package aggregation classifies formula fragments as aggregate or scalar.
//
// A formula is aggregate when it calls a registered aggregate function,
// at any nesting depth. The check is lexical: no SQL parse is attempted.
package aggregation

import (
	"sort"
	"strings"
)

// Registry holds the set of aggregate function names, matched case-insensitively.
type Registry struct {
	names map[string]struct{}
}

// NewRegistry creates a registry holding the given function names.
func NewRegistry(names ...string) *Registry {
	r := &Registry{names: make(map[string]struct{}, len(names))}
	r.Add(names...)
	return r
}

// Add registers additional aggregate names.
func (r *Registry) Add(names ...string) *Registry {
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			r.names[n] = struct{}{}
		}
	}
	return r
}

// IsAggregate reports whether name is a registered aggregate function.
func (r *Registry) IsAggregate(name string) bool {
	_, ok := r.names[strings.ToLower(name)]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether the formula calls any registered aggregate.
func (r *Registry) Contains(formula string) bool {
	s := newScanner(formula)
	for {
		ident, ok := s.nextIdentifier()
		if !ok {
			return false
		}
		if r.IsAggregate(ident) && s.nextIsCall() {
			return true
		}
	}
}

// Default is the built-in aggregate set shared by the supported dialects.
var Default = NewRegistry(
	// Standard aggregates
	"SUM", "COUNT", "AVG", "MIN", "MAX",
	"STDDEV", "STDDEV_POP", "STDDEV_SAMP",
	"VARIANCE", "VAR_POP", "VAR_SAMP",
	// Collection
	"LIST", "ARRAY_AGG", "STRING_AGG", "GROUP_CONCAT",
	"FIRST", "LAST", "ANY_VALUE", "ARBITRARY",
	"MEDIAN", "MODE", "QUANTILE", "QUANTILE_CONT", "QUANTILE_DISC",
	"APPROX_COUNT_DISTINCT", "APPROX_QUANTILE",
	"BIT_AND", "BIT_OR", "BIT_XOR", "BOOL_AND", "BOOL_OR", "EVERY",
	"CORR", "COVAR_POP", "COVAR_SAMP", "REGR_AVGX", "REGR_AVGY",
	"REGR_COUNT", "REGR_INTERCEPT", "REGR_R2", "REGR_SLOPE",
	"REGR_SXX", "REGR_SXY", "REGR_SYY",
	"PRODUCT", "FSUM", "FAVG",
	// Statistical
	"MAD", "ENTROPY", "KURTOSIS", "SKEWNESS",
)

// ContainsAggregation reports whether the formula calls an aggregate from Default.
func ContainsAggregation(formula string) bool {
	return Default.Contains(formula)
}
