package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/bridged/internal/db"
	"github.com/dokzlo13/bridged/internal/resource"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLoadMissingSnapshot(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Load reported a snapshot on an empty database")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	reg := resource.NewRegistry(nil)
	light := resource.NewLight("1", "desk", "LCT001")
	reg.AddLight(light)

	on := true
	bri := 120
	now := time.Now()
	light.SetState(resource.StatePatch{On: &on, Bri: &bri}, now)

	group := resource.NewGroup("1", "office", "Room")
	group.LightIDs = []string{"1"}
	reg.AddGroup(group)

	if err := s.Save(reg.Snapshot()); err != nil {
		t.Fatal(err)
	}

	snap, ok, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Load found no snapshot after Save")
	}

	restored := resource.NewRegistry(nil)
	restored.Restore(snap)

	got := restored.LightByID("1")
	if got == nil {
		t.Fatal("light missing after restore")
	}
	state := got.State()
	if !state.On {
		t.Error("restored light off, want on")
	}
	if state.Bri != 120 {
		t.Errorf("restored bri = %d, want 120", state.Bri)
	}
	lc, ok := got.LastChanged("bri")
	if !ok {
		t.Fatal("restored light lost lastchanged for bri")
	}
	if !lc.Equal(now.Truncate(0)) && lc.Unix() != now.Unix() {
		t.Errorf("restored lastchanged = %v, want ~%v", lc, now)
	}

	if g := restored.GroupByID("1"); g == nil || len(g.LightIDs) != 1 {
		t.Error("group membership lost in round trip")
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	reg := resource.NewRegistry(nil)
	reg.AddLight(resource.NewLight("1", "a", "LCT001"))
	if err := s.Save(reg.Snapshot()); err != nil {
		t.Fatal(err)
	}

	reg.AddLight(resource.NewLight("2", "b", "LCT001"))
	if err := s.Save(reg.Snapshot()); err != nil {
		t.Fatal(err)
	}

	snap, _, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Lights) != 2 {
		t.Errorf("snapshot lights = %d, want 2", len(snap.Lights))
	}
}
