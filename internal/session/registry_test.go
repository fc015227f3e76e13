package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRegistry(client *fakeClient) *Registry {
	return NewRegistry(client, 10, zap.NewNop(), testMetrics(), nil)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	client, _, _ := newFakeClient()
	r := newTestRegistry(client)

	const n = 20
	sessions := make([]*Session, n)
	var createdCount sync.Map
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, created := r.GetOrCreate("u1")
			sessions[i] = s
			if created {
				createdCount.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	creates := 0
	createdCount.Range(func(_, _ any) bool {
		creates++
		return true
	})
	if creates != 1 {
		t.Errorf("created %d sessions, want 1", creates)
	}
	for i := 1; i < n; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent callers observed different instances")
		}
	}
	if r.Count() != 1 {
		t.Errorf("count: got %d, want 1", r.Count())
	}
}

func TestCloseAndRemoveIdempotent(t *testing.T) {
	client, conn, _ := newFakeClient()
	r := newTestRegistry(client)

	s, _ := r.GetOrCreate("u1")
	if _, err := s.Join(context.Background(), "room-a", "tok", "ws://media", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	r.CloseAndRemove("u1")
	r.CloseAndRemove("u1")
	r.CloseAndRemove("unknown")

	if n := conn.disconnects.Load(); n != 1 {
		t.Errorf("disconnects: got %d, want 1", n)
	}
	if _, ok := r.Get("u1"); ok {
		t.Error("session still registered after CloseAndRemove")
	}
}

func TestUserIDReusableAfterRemove(t *testing.T) {
	client, _, _ := newFakeClient()
	r := newTestRegistry(client)

	first, _ := r.GetOrCreate("u1")
	r.CloseAndRemove("u1")
	second, created := r.GetOrCreate("u1")
	if !created {
		t.Error("expected a fresh session after removal")
	}
	if first == second {
		t.Error("got the closed session back")
	}
}

func TestShutdownAllClosesEverySession(t *testing.T) {
	client, conn, _ := newFakeClient()
	r := newTestRegistry(client)

	for _, id := range []string{"u1", "u2", "u3"} {
		s, _ := r.GetOrCreate(id)
		if _, err := s.Join(context.Background(), "room-a", "tok", "ws://media", ""); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	r.ShutdownAll(time.Second)

	if r.Count() != 0 {
		t.Errorf("count after shutdown: got %d, want 0", r.Count())
	}
	if n := conn.disconnects.Load(); n != 3 {
		t.Errorf("disconnects: got %d, want 3", n)
	}
}
