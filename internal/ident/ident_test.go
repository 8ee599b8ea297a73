package ident

import (
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	a := gen.NewID()
	b := gen.NewID()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")

	assert.Equal(t, "a", gen.NewID())
	assert.Equal(t, "b", gen.NewID())
	assert.Panics(t, func() { gen.NewID() })
}

func TestSequenceGenerator_ConcurrentUnique(t *testing.T) {
	gen := NewSequenceGenerator("op")
	const n = 200

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id := gen.NewID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.True(t, seen["op-1"])
	assert.True(t, seen["op-200"])
}

func TestRandomBarcode(t *testing.T) {
	pattern := regexp.MustCompile(`^200\d{9}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, pattern, RandomBarcode())
	}
}

func TestSequentialBarcodes(t *testing.T) {
	next := SequentialBarcodes()
	assert.Equal(t, "200000000001", next())
	assert.Equal(t, "200000000002", next())
}
