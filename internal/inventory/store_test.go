package inventory_test

import (
	"errors"
	"testing"

	"github.com/BrightProgrammer7/OptiBlend/internal/inventory"
)

func newStore(t *testing.T) *inventory.Store {
	t.Helper()
	s, err := inventory.Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SeedDefaults(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	streams, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(streams) != 4 {
		t.Fatalf("seeded %d streams; want 4", len(streams))
	}
	// List is sorted by name.
	wantOrder := []string{"Biomass", "Plastic", "Tires", "Wood"}
	for i, name := range wantOrder {
		if streams[i].Name != name {
			t.Errorf("streams[%d].Name = %q; want %q", i, streams[i].Name, name)
		}
	}

	tires, err := s.Get("Tires")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tires.PCI != 8000 || tires.StockTons != 500 {
		t.Errorf("Tires = %+v; want pci 8000, stock 500", tires)
	}
}

func TestStore_SeedIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Consume some tires, then seed again: the consumption must survive.
	if _, err := s.Adjust("Tires", -100); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if err := s.Seed(); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	tires, err := s.Get("Tires")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tires.StockTons != 400 {
		t.Errorf("stock = %v; want 400 (reseed must not overwrite)", tires.StockTons)
	}
}

func TestStore_AdjustClampsAtZero(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Put(inventory.Stream{Name: "Plastic", PCI: 6000, StockTons: 10}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Adjust("Plastic", -25)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got.StockTons != 0 {
		t.Errorf("stock = %v; want 0 (clamped)", got.StockTons)
	}

	got, err = s.Adjust("Plastic", 5)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got.StockTons != 5 {
		t.Errorf("stock = %v; want 5", got.StockTons)
	}
}

func TestStore_GetUnknownStream(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Get("Uranium"); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("err = %v; want ErrNotFound", err)
	}
	if _, err := s.Adjust("Uranium", 1); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("Adjust err = %v; want ErrNotFound", err)
	}
}

func TestStore_PutRequiresName(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Put(inventory.Stream{}); err == nil {
		t.Error("Put with empty name should fail")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := inventory.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := s.Adjust("Wood", -200); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := inventory.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	wood, err := s2.Get("Wood")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if wood.StockTons != 1000 {
		t.Errorf("stock after reopen = %v; want 1000", wood.StockTons)
	}
}
