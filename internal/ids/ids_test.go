package ids

import (
	"sort"
	"testing"
)

func TestNewIsSortedAndUnique(t *testing.T) {
	const n = 500
	generated := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
		generated = append(generated, id)
	}
	if !sort.StringsAreSorted(generated) {
		t.Fatal("ids not monotonically increasing")
	}
}
