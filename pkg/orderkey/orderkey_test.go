package orderkey

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
)

func TestKeyBetween(t *testing.T) {
	tests := []struct {
		prev, next string
		want       string
	}{
		{"", "", "a0"},
		{"a0", "", "a1"},
		{"", "a0", "Zz"},
		{"a0", "a1", "a0V"},
		{"a0", "a0V", "a0G"},
		{"a1", "a2", "a1V"},
		{"az", "", "b00"},
		{"Zz", "a0", "ZzV"},
	}
	for _, tt := range tests {
		t.Run(tt.prev+"_"+tt.next, func(t *testing.T) {
			got, err := KeyBetween(tt.prev, tt.next)
			if err != nil {
				t.Fatalf("KeyBetween(%q, %q): %v", tt.prev, tt.next, err)
			}
			if got != tt.want {
				t.Errorf("KeyBetween(%q, %q) = %q, want %q", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestKeyBetweenRejectsBadBounds(t *testing.T) {
	tests := []struct {
		name, prev, next string
	}{
		{"equal bounds", "a1", "a1"},
		{"inverted bounds", "a2", "a1"},
		{"trailing zero", "a10", ""},
		{"bad head", "!x", ""},
		{"short integer", "b1", ""},
		{"reserved smallest", "", smallestInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyBetween(tt.prev, tt.next)
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("KeyBetween(%q, %q) error = %v, want ErrInvalidKey", tt.prev, tt.next, err)
			}
		})
	}
}

func TestRepeatedAppendStaysSortedAndShort(t *testing.T) {
	prev := ""
	for range 10000 {
		k, err := KeyAfter(prev)
		if err != nil {
			t.Fatalf("KeyAfter(%q): %v", prev, err)
		}
		if k <= prev {
			t.Fatalf("KeyAfter(%q) = %q does not sort after it", prev, k)
		}
		prev = k
	}
	if len(prev) > 4 {
		t.Errorf("key after 10000 appends is %q, want at most 4 characters", prev)
	}
}

func TestRepeatedPrependStaysSorted(t *testing.T) {
	next := ""
	for range 1000 {
		k, err := KeyBefore(next)
		if err != nil {
			t.Fatalf("KeyBefore(%q): %v", next, err)
		}
		if next != "" && k >= next {
			t.Fatalf("KeyBefore(%q) = %q does not sort before it", next, k)
		}
		next = k
	}
}

func TestRandomInsertionsPreserveOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	keys := []string{First}
	for range 2000 {
		i := rng.Intn(len(keys) + 1)
		prev, next := "", ""
		if i > 0 {
			prev = keys[i-1]
		}
		if i < len(keys) {
			next = keys[i]
		}
		k, err := KeyBetween(prev, next)
		if err != nil {
			t.Fatalf("KeyBetween(%q, %q): %v", prev, next, err)
		}
		if err := Validate(k); err != nil {
			t.Fatalf("generated invalid key %q: %v", k, err)
		}
		keys = append(keys[:i], append([]string{k}, keys[i:]...)...)
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatal("keys are not in byte order after random insertions")
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestNKeysBetween(t *testing.T) {
	tests := []struct {
		name, prev, next string
		n                int
	}{
		{"open both ends", "", "", 5},
		{"after", "a5", "", 7},
		{"before", "", "a5", 7},
		{"between", "a0", "a1", 10},
		{"none", "a0", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := NKeysBetween(tt.prev, tt.next, tt.n)
			if err != nil {
				t.Fatalf("NKeysBetween: %v", err)
			}
			if len(keys) != tt.n {
				t.Fatalf("got %d keys, want %d", len(keys), tt.n)
			}
			for i, k := range keys {
				if tt.prev != "" && k <= tt.prev {
					t.Errorf("keys[%d] = %q not after %q", i, k, tt.prev)
				}
				if tt.next != "" && k >= tt.next {
					t.Errorf("keys[%d] = %q not before %q", i, k, tt.next)
				}
				if i > 0 && keys[i-1] >= k {
					t.Errorf("keys[%d] = %q not after keys[%d] = %q", i, k, i-1, keys[i-1])
				}
			}
		})
	}
}

func TestNKeysAfterMatchesSequentialAppends(t *testing.T) {
	batch, err := NKeysAfter("a3", 4)
	if err != nil {
		t.Fatal(err)
	}
	prev := "a3"
	for i, k := range batch {
		want, _ := KeyAfter(prev)
		if k != want {
			t.Errorf("batch[%d] = %q, want %q", i, k, want)
		}
		prev = want
	}
}
