package generator_test

import (
	"regexp"
	"slices"
	"sync"
	"testing"

	"github.com/glizzus/harmony/internal/generator"
)

func TestUUIDGenerators_Next_Concurrent(t *testing.T) {
	tc := []struct {
		name  string
		gen   generator.Generator[string]
		regex *regexp.Regexp
	}{
		{
			name:  "v4",
			gen:   &generator.UUIDV4Generator{},
			regex: regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`),
		},
		{
			name:  "v7",
			gen:   &generator.UUIDV7Generator{},
			regex: regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`),
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			var mu sync.Mutex
			seen := make(map[string]struct{})

			total := 20000
			concurrency := 10
			batchSize := total / concurrency

			var wg sync.WaitGroup
			wg.Add(concurrency)

			for range concurrency {
				go func() {
					defer wg.Done()
					for range batchSize {
						id, err := test.gen.Next()
						if err != nil {
							t.Error("expected no error, got:", err)
							return
						}
						mu.Lock()
						if _, ok := seen[id]; ok {
							mu.Unlock()
							t.Errorf("expected a unique ID, got duplicate: %s", id)
							return
						}
						seen[id] = struct{}{}
						mu.Unlock()

						if !test.regex.MatchString(id) {
							t.Errorf("expected valid UUID format, got %s", id)
							return
						}
					}
				}()
			}

			wg.Wait()
		})
	}
}

func TestUUIDV7GeneratorIsOrdered(t *testing.T) {
	gen := &generator.UUIDV7Generator{}

	ids := make([]string, 1000)
	for i := range ids {
		id, err := gen.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids[i] = id
	}
	if !slices.IsSorted(ids) {
		t.Error("expected IDs to sort in the order they were generated")
	}
}
