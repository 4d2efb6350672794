package pool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"redline-go/internal/config"
	"redline-go/internal/domain"
)

func setupPool(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys := config.NewQueueConfig("redline-test")
	return NewRegistry(client, &keys), mr
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Name: "p", Segments: []string{"a", "b"}}, wantErr: false},
		{name: "empty name", cfg: Config{Segments: []string{"a"}}, wantErr: true},
		{name: "no segments", cfg: Config{Name: "p"}, wantErr: true},
		{name: "empty segment", cfg: Config{Name: "p", Segments: []string{"a", ""}}, wantErr: true},
		{name: "duplicate segment", cfg: Config{Name: "p", Segments: []string{"a", "a"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidPool) {
				t.Errorf("Validate() error = %v, want ErrInvalidPool", err)
			}
		})
	}
}

func TestSaveAndLoad_PreservesOrder(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()

	want := []string{"seg3", "seg1", "seg2"}
	p, err := reg.Save(ctx, Config{Name: "test_pool", Segments: want})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := p.LoadSegments(ctx)
	if err != nil {
		t.Fatalf("LoadSegments error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("LoadSegments len = %v, want %v", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	size, err := p.Size(ctx)
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if size != 3 {
		t.Errorf("Size = %v, want 3", size)
	}
}

func TestSave_ReplacesAndResetsCursor(t *testing.T) {
	reg, mr := setupPool(t)
	ctx := context.Background()

	p, err := reg.Save(ctx, Config{Name: "p", Segments: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := p.NextSegment(ctx); err != nil {
		t.Fatalf("NextSegment error: %v", err)
	}

	if _, err := reg.Save(ctx, Config{Name: "p", Segments: []string{"x", "y"}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if mr.Exists("redline-test:pool-cursor:p") {
		t.Error("cursor should be reset by Save")
	}

	seg, err := p.NextSegment(ctx)
	if err != nil {
		t.Fatalf("NextSegment error: %v", err)
	}
	if seg != "x" {
		t.Errorf("NextSegment = %v, want x", seg)
	}
}

func TestSave_NameCannotShadowCursor(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()

	p, err := reg.Save(ctx, Config{Name: "a", Segments: []string{"seg1", "seg2"}})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := p.NextSegment(ctx); err != nil {
		t.Fatalf("NextSegment error: %v", err)
	}

	if _, err := reg.Save(ctx, Config{Name: "a:cursor", Segments: []string{"x"}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	seg, err := p.NextSegment(ctx)
	if err != nil {
		t.Fatalf("NextSegment error: %v", err)
	}
	if seg != "seg2" {
		t.Errorf("NextSegment = %v, want seg2", seg)
	}
}

func TestUnknownPool(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()
	p := reg.Pool("missing")

	if _, err := p.LoadSegments(ctx); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Errorf("LoadSegments error = %v, want ErrPoolNotFound", err)
	}
	if _, err := p.Size(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Size error = %v, want ErrNotFound", err)
	}
	if _, err := p.NextSegment(ctx); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Errorf("NextSegment error = %v, want ErrPoolNotFound", err)
	}
}

func TestNextSegment_RoundRobin(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()

	p, err := reg.Save(ctx, Config{Name: "p", Segments: []string{"seg1", "seg2", "seg3"}})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	want := []string{"seg1", "seg2", "seg3", "seg1", "seg2", "seg3", "seg1"}
	for i, w := range want {
		got, err := p.NextSegment(ctx)
		if err != nil {
			t.Fatalf("NextSegment error: %v", err)
		}
		if got != w {
			t.Errorf("call %d: NextSegment = %v, want %v", i, got, w)
		}
	}
}

func TestNextSegment_FairAcrossClients(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()

	segments := []string{"a", "b", "c", "d"}
	if _, err := reg.Save(ctx, Config{Name: "shared", Segments: segments}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	const workers, rounds = 8, 10
	var (
		mu     sync.Mutex
		counts = make(map[string]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := reg.Pool("shared")
			for i := 0; i < rounds*len(segments)/workers; i++ {
				seg, err := p.NextSegment(ctx)
				if err != nil {
					t.Errorf("NextSegment error: %v", err)
					return
				}
				mu.Lock()
				counts[seg]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, seg := range segments {
		if counts[seg] != rounds {
			t.Errorf("counts[%s] = %v, want %v", seg, counts[seg], rounds)
		}
	}
}

func TestRegistry_SaveAll(t *testing.T) {
	reg, _ := setupPool(t)
	ctx := context.Background()

	err := reg.SaveAll(ctx, []Config{
		{Name: "one", Segments: []string{"a"}},
		{Name: "two", Segments: []string{"b", "c"}},
	})
	if err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}

	size, err := reg.Pool("two").Size(ctx)
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if size != 2 {
		t.Errorf("Size = %v, want 2", size)
	}

	if err := reg.SaveAll(ctx, []Config{{Name: "bad"}}); !errors.Is(err, domain.ErrInvalidPool) {
		t.Errorf("SaveAll error = %v, want ErrInvalidPool", err)
	}
}
