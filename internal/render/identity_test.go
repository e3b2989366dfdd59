package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewIdentityMapBijective(t *testing.T) {
	_, err := NewIdentityMap(map[ObjectIdentity]ObjectIdentity{
		"cup":   "splat/cup",
		"plate": "splat/cup",
	})
	if err == nil {
		t.Fatalf("duplicate splat target should be rejected")
	}
}

func TestNewIdentityMapEmptyName(t *testing.T) {
	_, err := NewIdentityMap(map[ObjectIdentity]ObjectIdentity{"cup": ""})
	if err == nil {
		t.Fatalf("empty splat name should be rejected")
	}
}

func TestIdentityMapLookup(t *testing.T) {
	m, err := NewIdentityMap(map[ObjectIdentity]ObjectIdentity{
		"cup":           "splat/latte_cup",
		"robot_gripper": "splat/gripper",
	})
	if err != nil {
		t.Fatalf("NewIdentityMap: %v", err)
	}

	if got, ok := m.Lookup("cup"); !ok || got != "splat/latte_cup" {
		t.Errorf("Lookup(cup) = %q, %v", got, ok)
	}
	if _, ok := m.Lookup("ghost_object"); ok {
		t.Errorf("Lookup(ghost_object) should miss")
	}
	want := []ObjectIdentity{"cup", "robot_gripper"}
	if diff := cmp.Diff(want, m.SimObjects()); diff != "" {
		t.Errorf("SimObjects mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIdentityMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.json")
	content := `{"cup": "splat/cup", "tray": "splat/tray"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	m, err := LoadIdentityMap(path)
	if err != nil {
		t.Fatalf("LoadIdentityMap: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
}

func TestLoadIdentityMapRejectsNonJSON(t *testing.T) {
	if _, err := LoadIdentityMap("ids.yaml"); err == nil {
		t.Fatalf("non-json extension should be rejected")
	}
}
