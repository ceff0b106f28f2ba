package cache

import (
	"strings"
	"testing"
	"time"
)

// Fuzz Upsert/Get/Remove under arbitrary ids and locators.
// Guards against panics and checks the twin invariant after each step.
func FuzzCache_UpsertGetRemove(f *testing.F) {
	f.Add("", "")
	f.Add("zz9", "https://example.com/x")
	f.Add("αβγ", "https://δ.example/🙂")
	f.Add("long", "https://example.com/"+strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, id, locator string) {
		const limit = 1 << 12
		if len(id) > limit {
			id = id[:limit]
		}
		if len(locator) > limit {
			locator = locator[:limit]
		}

		clk := newFakeClock()
		c := New(Options{MaxEntries: 4, Clock: clk})
		r := Record{ID: id, Locator: locator, ExpiresAt: clk.now().Add(time.Minute)}

		c.Upsert(r)
		got, ok := c.GetByID(id)
		if !ok || !got.Equal(r) {
			t.Fatalf("GetByID after Upsert: want %+v, got %+v ok=%v", r, got, ok)
		}
		got, ok = c.GetByLocator(locator)
		if !ok || !got.Equal(r) {
			t.Fatalf("GetByLocator after Upsert: want %+v, got %+v ok=%v", r, got, ok)
		}

		// Same id, derived locator: the old locator must be released.
		moved := Record{ID: id, Locator: locator + "/moved", ExpiresAt: r.ExpiresAt}
		c.Upsert(moved)
		if _, ok := c.GetByLocator(locator); ok {
			t.Fatalf("old locator still resolves after the id moved")
		}

		if !c.Remove(id) {
			t.Fatalf("Remove must return true")
		}
		if byID, byLoc := c.Len(); byID != 0 || byLoc != 0 {
			t.Fatalf("indices not empty after Remove: %d/%d", byID, byLoc)
		}
	})
}
