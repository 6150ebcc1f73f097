package permission

import (
	"slices"
	"strings"

	"github.com/sipico/admin-auth/internal/apperr"
)

// Token types.
const (
	TypeReadOnly   = "read-only"
	TypeFullAccess = "full-access"
	TypeCustom     = "custom"
)

// Unique drops repeated values, keeping the first occurrence of each.
func Unique[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Delta is the change needed to turn one grant set into another.
type Delta[T comparable] struct {
	ToAdd    []T
	ToRemove []T
}

// Empty reports whether the delta has no work.
func (d Delta[T]) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Reconcile computes the set difference between current and requested.
// Duplicates in either input are collapsed first.
func Reconcile[T comparable](current, requested []T) Delta[T] {
	cur := Unique(current)
	req := Unique(requested)

	var d Delta[T]
	for _, v := range req {
		if !slices.Contains(cur, v) {
			d.ToAdd = append(d.ToAdd, v)
		}
	}
	for _, v := range cur {
		if !slices.Contains(req, v) {
			d.ToRemove = append(d.ToRemove, v)
		}
	}
	return d
}

// AssertValid checks the permissions supplied for a token.
//
// typed is false for families without read-only/full-access variants, which
// always behave as custom. present reports whether the caller supplied a
// permissions attribute at all.
func AssertValid(tokenType string, typed bool, perms []string, present bool, reg Registry) error {
	custom := !typed || tokenType == TypeCustom

	if !custom {
		if len(perms) > 0 {
			return apperr.Validation("Non-custom tokens should not reference permissions")
		}
		return nil
	}

	if !present {
		return apperr.Validation("Missing permissions attribute for custom token")
	}
	if len(perms) == 0 {
		return apperr.Validation("Custom tokens must reference at least one permission")
	}

	return AssertKnown(perms, reg)
}

// AssertKnown fails listing every entry of perms absent from reg, in input order.
func AssertKnown(perms []string, reg Registry) error {
	return AssertKnownNamed("permissions", perms, reg)
}

// AssertKnownNamed is AssertKnown with the noun used in the message, e.g. "roles".
func AssertKnownNamed(noun string, values []string, reg Registry) error {
	known := make(map[string]struct{})
	for _, k := range reg.Keys() {
		known[k] = struct{}{}
	}

	var unknown []string
	for _, v := range Unique(values) {
		if _, ok := known[v]; !ok {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) > 0 {
		return apperr.Validation("Unknown %s provided: %s", noun, strings.Join(unknown, ", "))
	}
	return nil
}

// ValidType reports whether t is one of the token types.
func ValidType(t string) bool {
	return t == TypeReadOnly || t == TypeFullAccess || t == TypeCustom
}
