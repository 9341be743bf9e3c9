// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// MaxSuffix bounds how many numbered candidates Unique will try.
const MaxSuffix = 1000

// ErrExhausted is returned when every candidate up to MaxSuffix is taken.
var ErrExhausted = errors.New("slug candidates exhausted")

// ExistsFunc reports whether candidate is already used in the namespace
// being allocated from. Callers bind the namespace, the transaction and
// the id to exclude (the entity being renamed) into the closure.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Unique slugifies text and searches for a free slug, appending -1, -2, ...
// until exists reports no collision. The result is only a hint: the
// storage uniqueness constraint decides, and a violation there means the
// caller should retry, which searches again.
func Unique(ctx context.Context, text string, exists ExistsFunc) (string, error) {
	base := Generate(text)
	if base == "" {
		base = Fallback
	}

	for i := 0; i <= MaxSuffix; i++ {
		candidate := Candidate(base, i)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrExhausted, base)
}

// Candidate returns base for n == 0 and base-n otherwise.
func Candidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
