package vfs

import "testing"

func TestFixSlashes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty is root", input: "", expected: ""},
		{name: "dot is root", input: ".", expected: ""},
		{name: "plain name", input: "a.png", expected: "a.png"},
		{name: "backslashes", input: `img\sub\a.png`, expected: "img/sub/a.png"},
		{name: "trailing slash", input: "img/", expected: "img"},
		{name: "duplicate separators", input: "img//a.png", expected: "img/a.png"},
		{name: "dot segments", input: "./img/./a.png", expected: "img/a.png"},
		{name: "container marker", input: "#img/a.png", expected: "#img/a.png"},
		{name: "absolute", input: "/tmp/x", expected: "/tmp/x"},
		{name: "network share", input: `\\server\share\a.png`, expected: `\\server/share/a.png`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FixSlashes(tt.input); got != tt.expected {
				t.Errorf("FixSlashes(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "#img/a.png", want: "#/img/a.png"},
		{in: "#/img/a.png", want: "#/img/a.png"},
		{in: "#//img/a.png", want: "#/img/a.png"},
		{in: "#", want: "#"},
		{in: "#/", want: "#"},
		{in: `#img\a.png`, want: "#/img/a.png"},
		{in: "notes.txt", want: "notes.txt"},
		{in: "dir//notes.txt", want: "dir/notes.txt"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirAndBase(t *testing.T) {
	tests := []struct {
		input string
		dir   string
		base  string
	}{
		{input: "a.png", dir: "", base: "a.png"},
		{input: "img/a.png", dir: "img", base: "a.png"},
		{input: "#img/sub/a.png", dir: "#img/sub", base: "a.png"},
		{input: "#", dir: "", base: "#"},
	}

	for _, tt := range tests {
		if got := Dir(tt.input); got != tt.dir {
			t.Errorf("Dir(%q) = %q, want %q", tt.input, got, tt.dir)
		}
		if got := Base(tt.input); got != tt.base {
			t.Errorf("Base(%q) = %q, want %q", tt.input, got, tt.base)
		}
	}
}

func TestPathComponents(t *testing.T) {
	tests := []struct {
		path      string
		filename  string
		stem      string
		extension string
	}{
		{path: "/foo/bar.txt", filename: "bar.txt", stem: "bar", extension: ".txt"},
		{path: "foo/bar.txt", filename: "bar.txt", stem: "bar", extension: ".txt"},
		{path: "bar.txt", filename: "bar.txt", stem: "bar", extension: ".txt"},
		{path: "", filename: "", stem: "", extension: ""},
		{path: "/", filename: "", stem: "", extension: ""},
		{path: "/foo/", filename: "", stem: "", extension: ""},
		{path: "/foo/bar", filename: "bar", stem: "bar", extension: ""},
		{path: "/foo/.bar", filename: ".bar", stem: ".bar", extension: ""},
		{path: ".bar", filename: ".bar", stem: ".bar", extension: ""},
		{path: "/foo/bar.", filename: "bar.", stem: "bar", extension: "."},
		{path: "/foo/.", filename: ".", stem: ".", extension: ""},
		{path: "..", filename: "..", stem: "..", extension: ""},
		{path: "/foo/..", filename: "..", stem: "..", extension: ""},
		{path: "/foo/bar.txt/play.dd", filename: "play.dd", stem: "play", extension: ".dd"},
		{path: "/foo/bar.txt/play", filename: "play", stem: "play", extension: ""},
		{path: "/foo/..weird", filename: "..weird", stem: ".", extension: ".weird"},
		{path: "..weird", filename: "..weird", stem: ".", extension: ".weird"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Filename(tt.path); got != tt.filename {
				t.Errorf("Filename(%q) = %q, want %q", tt.path, got, tt.filename)
			}
			if got := Stem(tt.path); got != tt.stem {
				t.Errorf("Stem(%q) = %q, want %q", tt.path, got, tt.stem)
			}
			if got := Extension(tt.path); got != tt.extension {
				t.Errorf("Extension(%q) = %q, want %q", tt.path, got, tt.extension)
			}
		})
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{path: "", expected: ""},
		{path: "/", expected: "/"},
		{path: "bar", expected: ""},
		{path: "/bar", expected: "/"},
		{path: "/foo/bar", expected: "/foo"},
		{path: "foo//bar", expected: "foo"},
		{path: "/foo/bar/", expected: "/foo/bar"},
	}

	for _, tt := range tests {
		if got := ParentPath(tt.path); got != tt.expected {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}
