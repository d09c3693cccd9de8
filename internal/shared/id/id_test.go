package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		name   string
		prefix string
	}{
		{"request", RequestPrefix},
		{"client", ClientPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := gen.GenerateWithPrefix(tt.prefix)
			require.True(t, strings.HasPrefix(id, tt.prefix+"_"))
			assert.Len(t, strings.TrimPrefix(id, tt.prefix+"_"), 26)
			assert.True(t, IsValid(id))
		})
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewRequestID().String(), "req_"))
	assert.True(t, strings.HasPrefix(NewClientID().String(), "cli_"))
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{NewGenerator().Generate().String(), true},
		{string(NewRequestID()), true},
		{"", false},
		{"req_not-a-ulid", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.id))
		})
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(string(NewRequestID()))
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Timestamp("garbage")
	assert.Error(t, err)
}

func TestMonotonicOrder(t *testing.T) {
	gen := NewGenerator()
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = gen.Generate().String()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.GenerateWithPrefix(RequestPrefix)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func BenchmarkGenerate(b *testing.B) {
	gen := NewGenerator()
	for i := 0; i < b.N; i++ {
		gen.Generate()
	}
}
