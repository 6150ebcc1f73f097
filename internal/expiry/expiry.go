// Package expiry validates token lifespans and derives expiry timestamps.
//
// Lifespans are milliseconds; nil means the token never expires.
package expiry

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sipico/admin-auth/internal/apperr"
)

// Standard lifespans, in milliseconds.
const (
	SevenDays  int64 = 7 * 24 * 60 * 60 * 1000
	ThirtyDays int64 = 30 * 24 * 60 * 60 * 1000
	NinetyDays int64 = 90 * 24 * 60 * 60 * 1000
)

// Policy decides which lifespans a token family accepts.
type Policy interface {
	IsValid(lifespan *int64) bool
	Assert(lifespan *int64) error
}

type allowedSet []int64

// AllowedSet accepts nil or one of values.
func AllowedSet(values ...int64) Policy {
	return allowedSet(slices.Clone(values))
}

// Default is the policy of api and transfer tokens.
func Default() Policy {
	return AllowedSet(SevenDays, ThirtyDays, NinetyDays)
}

func (s allowedSet) IsValid(lifespan *int64) bool {
	return lifespan == nil || slices.Contains(s, *lifespan)
}

func (s allowedSet) Assert(lifespan *int64) error {
	if s.IsValid(lifespan) {
		return nil
	}
	vals := make([]string, 0, len(s)+1)
	vals = append(vals, "null")
	for _, v := range s {
		vals = append(vals, strconv.FormatInt(v, 10))
	}
	return apperr.Validation("lifespan must be one of the following values: %s", strings.Join(vals, ", "))
}

type positive struct{}

// Positive accepts nil or any lifespan greater than zero.
func Positive() Policy {
	return positive{}
}

func (positive) IsValid(lifespan *int64) bool {
	return lifespan == nil || *lifespan > 0
}

func (p positive) Assert(lifespan *int64) error {
	if p.IsValid(lifespan) {
		return nil
	}
	return apperr.Validation("lifespan must be a positive number or null")
}

// Expiration is the pair persisted on a token. Both fields are nil or both set.
type Expiration struct {
	Lifespan  *int64
	ExpiresAt *time.Time
}

// Compute derives the expiry for lifespan starting at now. A nil or zero
// lifespan never expires.
func Compute(lifespan *int64, now time.Time) Expiration {
	if lifespan == nil || *lifespan == 0 {
		return Expiration{}
	}
	l := *lifespan
	at := now.Add(time.Duration(l) * time.Millisecond)
	return Expiration{Lifespan: &l, ExpiresAt: &at}
}

// Expired reports whether expiresAt is set and not after now.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}

// Ptr returns a pointer to ms, for building lifespans inline.
func Ptr(ms int64) *int64 {
	return &ms
}
