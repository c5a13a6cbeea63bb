// Package catalog narrows the global task and contingency catalogs down to
// the entries that apply to an area.
package catalog

import "github.com/dharsanguruparan/CleanOps/internal/model"

// Typed is any catalog entry carrying a type code.
type Typed interface {
	TypeCode() model.Code
}

// FilterByType returns the entries whose type code equals code, in input
// order. The input is not modified.
func FilterByType[T Typed](entries []T, code model.Code) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if e.TypeCode() == code {
			out = append(out, e)
		}
	}
	return out
}

// IndexByID maps entries by id for lookups during report hydration.
func IndexByID[T any](entries []T, id func(T) model.ID) map[model.ID]T {
	out := make(map[model.ID]T, len(entries))
	for _, e := range entries {
		out[id(e)] = e
	}
	return out
}
