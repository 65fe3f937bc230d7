package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_NewestFirst(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 2; i++ {
		r.Record(Entry{ID: fmt.Sprint(i)})
	}

	got := r.Recent()
	assert.Equal(t, []string{"2", "1"}, ids(got))
	assert.Equal(t, 2, r.Len())
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Record(Entry{ID: fmt.Sprint(i)})
	}

	assert.Equal(t, []string{"5", "4", "3"}, ids(r.Recent()))
	assert.Equal(t, 3, r.Len())
}

func TestRing_ZeroCapacity(t *testing.T) {
	r := NewRing(0)
	r.Record(Entry{ID: "x"})
	assert.Empty(t, r.Recent())

	neg := NewRing(-4)
	neg.Record(Entry{ID: "x"})
	assert.Equal(t, 0, neg.Len())
}

func TestRing_NilSafe(t *testing.T) {
	var r *Ring
	assert.NotPanics(t, func() {
		r.Record(Entry{ID: "x"})
	})
	assert.NotNil(t, r.Recent())
	assert.Equal(t, 0, r.Len())
}

func TestRing_Concurrent(t *testing.T) {
	r := NewRing(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(Entry{ID: fmt.Sprint(i)})
			_ = r.Recent()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, r.Len())
}

func TestDigest(t *testing.T) {
	a := Digest([]byte(`{"ref":"refs/heads/main"}`))
	b := Digest([]byte(`{"ref":"refs/heads/main"}`))
	c := Digest([]byte(`{"ref":"refs/heads/dev"}`))

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
