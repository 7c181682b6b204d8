package vfs

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func newMemNative(t *testing.T, files map[string]string) *Native {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		if err := fsys.MkdirAll(Dir(name), 0o755); err != nil && Dir(name) != "" {
			t.Fatalf("Failed to create parent of %s: %v", name, err)
		}
		if err := afero.WriteFile(fsys, name, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return NewNative(fsys)
}

func TestGroupFind(t *testing.T) {
	native := newMemNative(t, nil)
	archive := newMemNative(t, nil)
	assets := newMemNative(t, nil)

	g := NewGroup(native)
	g.Register("#", archive, "", false)
	g.Register("assets", assets, "shared", true)

	tests := []struct {
		name       string
		path       string
		wantTarget FileSystem
		wantInner  string
	}{
		{name: "container marker", path: "#img/a.png", wantTarget: archive, wantInner: "img/a.png"},
		{name: "container root", path: "#", wantTarget: archive, wantInner: ""},
		{name: "marker followed by separator", path: "#/img/a.png", wantTarget: archive, wantInner: "img/a.png"},
		{name: "native file", path: "x.png", wantTarget: native, wantInner: "x.png"},
		{name: "boundary mount", path: "assets/logo.svg", wantTarget: assets, wantInner: "shared/logo.svg"},
		{name: "boundary mount root", path: "assets", wantTarget: assets, wantInner: "shared"},
		{name: "boundary not met", path: "assetsx/logo.svg", wantTarget: native, wantInner: "assetsx/logo.svg"},
		{name: "backslashes normalized", path: `#img\a.png`, wantTarget: archive, wantInner: "img/a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, inner, ok := g.Find(tt.path)
			if !ok {
				t.Fatalf("Find(%q) found no mount", tt.path)
			}
			if target != tt.wantTarget {
				t.Errorf("Find(%q) resolved to the wrong store", tt.path)
			}
			if inner != tt.wantInner {
				t.Errorf("Find(%q) inner = %q, want %q", tt.path, inner, tt.wantInner)
			}
		})
	}
}

func TestGroupLongestPrefixWins(t *testing.T) {
	outer := newMemNative(t, nil)
	inner := newMemNative(t, nil)

	g := NewGroup(nil)
	g.Register("data", outer, "", true)
	g.Register("data/cache", inner, "", true)

	target, name, ok := g.Find("data/cache/item")
	if !ok || target != inner || name != "item" {
		t.Errorf("Find(data/cache/item) = %v, %q, %v; want inner store, \"item\"", target, name, ok)
	}

	if _, _, ok := g.Find("elsewhere"); ok {
		t.Errorf("Find(elsewhere) matched without a root mount")
	}
}

func TestGroupDirectoryScanShowsMounts(t *testing.T) {
	native := newMemNative(t, map[string]string{"notes.txt": "n"})
	archive := newMemNative(t, map[string]string{"img/a.png": "a"})

	g := NewGroup(native)
	g.Register("#", archive, "", false)

	names, err := g.DirectoryScan("")
	if err != nil {
		t.Fatalf("DirectoryScan(\"\") failed: %v", err)
	}
	want := []string{"#", "notes.txt"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("DirectoryScan(\"\") = %v, want %v", names, want)
	}

	names, err = g.DirectoryScan("#")
	if err != nil {
		t.Fatalf("DirectoryScan(#) failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"img"}) {
		t.Errorf("DirectoryScan(#) = %v, want [img]", names)
	}
}

func TestGroupDirectoryScanHidesMissingMountTarget(t *testing.T) {
	native := newMemNative(t, nil)
	assets := newMemNative(t, nil)

	g := NewGroup(native)
	g.Register("assets", assets, "missing", true)

	names, err := g.DirectoryScan("")
	if err != nil {
		t.Fatalf("DirectoryScan(\"\") failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("DirectoryScan(\"\") = %v, want no entries", names)
	}
}

func TestGroupReadWriteThroughMount(t *testing.T) {
	native := newMemNative(t, nil)
	archive := newMemNative(t, map[string]string{"img/keep": ""})

	g := NewGroup(native)
	g.Register("#", archive, "", false)

	if err := WriteFile(g, "#img/a.png", []byte("pixels")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !archive.IsFile("img/a.png") {
		t.Errorf("write through the group did not reach the mounted store")
	}
	if native.IsFile("#img/a.png") {
		t.Errorf("write through the group leaked into the root store")
	}

	data, err := ReadFile(g, "#img/a.png")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("ReadFile = %q, want %q", data, "pixels")
	}
}

func TestGroupFileRemoveIsIdempotent(t *testing.T) {
	g := NewGroup(newMemNative(t, nil))
	if err := g.FileRemove("missing.txt"); err != nil {
		t.Errorf("FileRemove(missing.txt) = %v, want nil", err)
	}
}

func TestGroupRenameAcrossStores(t *testing.T) {
	native := newMemNative(t, map[string]string{"a.txt": "hello"})
	archive := newMemNative(t, nil)

	g := NewGroup(native)
	g.Register("#", archive, "", false)

	if err := g.FileRename("a.txt", "#a.txt"); err != nil {
		t.Fatalf("FileRename failed: %v", err)
	}
	if native.IsFile("a.txt") {
		t.Errorf("source still exists after rename")
	}
	data, err := ReadFile(archive, "a.txt")
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile(a.txt) = %q, %v; want %q", data, err, "hello")
	}
}

func TestGroupNoMount(t *testing.T) {
	g := NewGroup(nil)
	if _, err := g.GetReadStream("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReadStream(x) error = %v, want ErrNotFound", err)
	}
	if !g.IsDirectory("") {
		t.Errorf("IsDirectory(\"\") = false, want true")
	}
}
