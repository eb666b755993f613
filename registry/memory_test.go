package registry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testRecord(intent string) *Record {
	return &Record{
		Subtoken:          []byte(`{"k":"v"}`),
		Rule:              []byte(`{"name":"default"}`),
		Intent:            intent,
		CallerIP:          "192.0.2.1",
		ServiceVersion:    "authcore/test",
		DelegatedIdentity: "user:joe@example.com",
		RequestorIdentity: "user:joe@example.com",
		Services:          []string{"service:builder"},
		CreationTime:      time.Now().UTC(),
	}
}

func TestMemoryMonotonicIDs(t *testing.T) {
	m := NewMemory()
	for want := int64(1); want <= 5; want++ {
		id, err := m.Register(context.Background(), testRecord("x"))
		if err != nil {
			t.Fatalf("Register error = %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}
	if m.Len() != 5 {
		t.Errorf("Len = %d, want 5", m.Len())
	}
}

func TestMemoryZeroValue(t *testing.T) {
	var m Memory
	id, err := m.Register(context.Background(), testRecord("x"))
	if err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}
}

func TestMemoryStoresCopy(t *testing.T) {
	m := NewMemory()
	rec := testRecord("original")
	id, err := m.Register(context.Background(), rec)
	if err != nil {
		t.Fatalf("Register error = %v", err)
	}

	rec.Intent = "mutated"
	rec.Services[0] = "service:mutated"

	stored := m.Get(id)
	if stored.Intent != "original" {
		t.Errorf("stored intent = %q, want original", stored.Intent)
	}
	if stored.Services[0] != "service:builder" {
		t.Errorf("stored services = %v, want the copy taken at Register time", stored.Services)
	}
}

func TestMemoryConcurrentRegister(t *testing.T) {
	m := NewMemory()
	const n = 50

	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.Register(context.Background(), testRecord("x"))
			if err != nil {
				t.Errorf("Register error = %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
	if m.Len() != n {
		t.Errorf("Len = %d, want %d", m.Len(), n)
	}
}

func TestMemoryGetUnknown(t *testing.T) {
	if got := NewMemory().Get(99); got != nil {
		t.Errorf("Get(99) = %v, want nil", got)
	}
}
