// Package orderkey generates fractional-index order keys.
//
// Keys are strings that sort byte-wise in the intended order, so a new key
// can always be generated before, after, or between existing keys without
// renumbering anything. A key is an integer head followed by an optional
// fraction. The first character of the head encodes its length ('a'..'z' for
// non-negative integers of 1..26 digits, 'Z'..'A' for negative ones), which
// keeps repeated appends short: a key only grows by one character each time
// the integer part overflows its current width.
//
// An empty string stands for an open end in every function.
//
// Storage that compares keys must use byte order ("C" collation).
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	// First is the key generated for an empty sequence.
	First = "a0"

	smallestInteger = "A00000000000000000000000000"
)

// ErrInvalidKey is returned for a string that is not a well-formed key.
var ErrInvalidKey = errors.New("invalid order key")

// ErrExhausted is returned when no key exists on the requested side.
var ErrExhausted = errors.New("order key space exhausted")

// KeyAfter returns a key that sorts after prev. An empty prev yields First.
func KeyAfter(prev string) (string, error) {
	return KeyBetween(prev, "")
}

// KeyBefore returns a key that sorts before next. An empty next yields First.
func KeyBefore(next string) (string, error) {
	return KeyBetween("", next)
}

// KeyBetween returns a key k with prev < k < next. Either bound may be empty
// to leave that side open.
func KeyBetween(prev, next string) (string, error) {
	if prev != "" {
		if err := Validate(prev); err != nil {
			return "", err
		}
	}
	if next != "" {
		if err := Validate(next); err != nil {
			return "", err
		}
	}
	if prev != "" && next != "" && prev >= next {
		return "", fmt.Errorf("%w: %q is not before %q", ErrInvalidKey, prev, next)
	}

	if prev == "" {
		if next == "" {
			return First, nil
		}
		ib := integerPart(next)
		fb := next[len(ib):]
		if ib == smallestInteger {
			return ib + midpoint("", fb), nil
		}
		if ib < next {
			return ib, nil
		}
		res, ok := decrementInteger(ib)
		if !ok {
			return "", ErrExhausted
		}
		return res, nil
	}

	ia := integerPart(prev)
	fa := prev[len(ia):]
	if next == "" {
		i, ok := incrementInteger(ia)
		if !ok {
			return ia + midpoint(fa, ""), nil
		}
		return i, nil
	}

	ib := integerPart(next)
	fb := next[len(ib):]
	if ia == ib {
		return ia + midpoint(fa, fb), nil
	}
	i, ok := incrementInteger(ia)
	if !ok {
		return "", ErrExhausted
	}
	if i < next {
		return i, nil
	}
	return ia + midpoint(fa, ""), nil
}

// NKeysAfter returns n strictly increasing keys that all sort after prev.
func NKeysAfter(prev string, n int) ([]string, error) {
	return NKeysBetween(prev, "", n)
}

// NKeysBetween returns n strictly increasing keys between prev and next,
// computed in one pass.
func NKeysBetween(prev, next string, n int) ([]string, error) {
	switch {
	case n <= 0:
		return nil, nil
	case n == 1:
		k, err := KeyBetween(prev, next)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}

	if next == "" {
		keys := make([]string, 0, n)
		k := prev
		for range n {
			var err error
			if k, err = KeyBetween(k, next); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, nil
	}

	if prev == "" {
		keys := make([]string, n)
		k := next
		for i := n - 1; i >= 0; i-- {
			var err error
			if k, err = KeyBetween(prev, k); err != nil {
				return nil, err
			}
			keys[i] = k
		}
		return keys, nil
	}

	mid := n / 2
	c, err := KeyBetween(prev, next)
	if err != nil {
		return nil, err
	}
	left, err := NKeysBetween(prev, c, mid)
	if err != nil {
		return nil, err
	}
	right, err := NKeysBetween(c, next, n-mid-1)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	keys = append(keys, left...)
	keys = append(keys, c)
	return append(keys, right...), nil
}

// Validate reports whether key is a well-formed order key.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	n, ok := integerLength(key[0])
	if !ok || n > len(key) {
		return fmt.Errorf("%w: %q has a malformed integer part", ErrInvalidKey, key)
	}
	for i := 1; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, key[i])
		}
	}
	if f := key[n:]; strings.HasSuffix(f, "0") {
		return fmt.Errorf("%w: %q has a trailing zero", ErrInvalidKey, key)
	}
	return nil
}

func integerLength(head byte) (int, bool) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, true
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, true
	}
	return 0, false
}

// integerPart assumes key already passed Validate.
func integerPart(key string) string {
	n, _ := integerLength(key[0])
	return key[:n]
}

// midpoint returns a fraction strictly between a and b, where b == "" means
// no upper bound. Neither argument may end in '0'.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}

	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := len(digits)
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}
	if db-da > 1 {
		return string(digits[(da+db+1)/2])
	}
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	return string(digits[da]) + midpoint(rest, "")
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return digits[0]
}

func incrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = digits[0]
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a" + string(digits[0]), true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, digits[0])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	last := digits[len(digits)-1]
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d == -1 {
			digs[i] = last
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(last), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, last)
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}
