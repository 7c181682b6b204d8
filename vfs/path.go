package vfs

import (
	"path"
	"strings"
)

// ContainerMarker is the leading segment that addresses the inside of an
// archive container once it is mounted into a Group.
const ContainerMarker = "#"

const networkSharePrefix = `\\`

// FixSlashes returns name in canonical form: backslashes become forward
// slashes, duplicate separators and "." segments are removed and a trailing
// separator is dropped. A leading double backslash is kept as is. The root
// is the empty string.
func FixSlashes(name string) string {
	share := strings.HasPrefix(name, networkSharePrefix)
	if share {
		name = name[len(networkSharePrefix):]
	}
	name = strings.ReplaceAll(name, `\`, "/")
	if name != "" {
		name = path.Clean(name)
	}
	if name == "." {
		name = ""
	}
	if share {
		return networkSharePrefix + strings.TrimPrefix(name, "/")
	}
	return name
}

// CanonicalName is FixSlashes plus a separator after a leading container
// marker, so "#img/a.png" and "#/img/a.png" name the same entry and the
// marker lists as a directory of its own.
func CanonicalName(name string) string {
	name = FixSlashes(name)
	rest, ok := strings.CutPrefix(name, ContainerMarker)
	if !ok || rest == "" || rest[0] == '/' {
		return name
	}
	return FixSlashes(ContainerMarker + "/" + rest)
}

// Join joins elements with a single slash and cleans the result.
func Join(elem ...string) string {
	var parts []string
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return FixSlashes(strings.Join(parts, "/"))
}

// Dir returns the directory part of a canonical name, or "" for a top level
// name.
func Dir(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// Base returns the last element of a canonical name.
func Base(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

// Depth returns the number of separators in a canonical name.
func Depth(name string) int {
	if name == "" {
		return -1
	}
	return strings.Count(name, "/")
}

func isSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

// relativePos returns the index where the relative part of p starts, or -1
// when p consists of separators only.
func relativePos(p string) int {
	if p == "" || !isSeparator(p[0]) {
		return 0
	}
	for i := 0; i < len(p); i++ {
		if !isSeparator(p[i]) {
			return i
		}
	}
	return -1
}

func filenamePos(p string) int {
	if p == "" {
		return -1
	}
	sep := strings.LastIndexAny(p, `/\`)
	if sep < 0 {
		return 0
	}
	if sep+1 == len(p) {
		return -1
	}
	return sep + 1
}

func extensionPos(p string) int {
	dot := strings.LastIndexByte(p, '.')
	if dot < 0 {
		return -1
	}
	fn := filenamePos(p)
	if fn < 0 || fn >= dot {
		return -1
	}
	if len(p)-fn == 2 && p[fn:] == ".." {
		return -1
	}
	return dot
}

// Filename returns the last component of p. It is empty when p is empty or
// ends with a separator.
func Filename(p string) string {
	fn := filenamePos(p)
	if fn < 0 {
		return ""
	}
	return p[fn:]
}

// Extension returns the extension of the filename of p including the dot.
// Hidden files such as ".bar" and the special names "." and ".." have none.
func Extension(p string) string {
	ext := extensionPos(p)
	if ext < 0 {
		return ""
	}
	return p[ext:]
}

// Stem returns the filename of p without its extension.
func Stem(p string) string {
	fn := filenamePos(p)
	if fn < 0 {
		return ""
	}
	ext := extensionPos(p)
	if ext < 0 {
		return p[fn:]
	}
	return p[fn:ext]
}

// ParentPath returns p without its last component. The parent of the root
// directory is the root directory itself.
func ParentPath(p string) string {
	rel := relativePos(p)
	if rel < 0 {
		return p
	}
	end := strings.LastIndexAny(p, `/\`)
	if end < 0 {
		return ""
	}
	for end > rel && isSeparator(p[end-1]) {
		end--
	}
	if end <= 0 {
		end = 1
	}
	return p[:end]
}
