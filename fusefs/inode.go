package fusefs

import (
	"strings"
	"sync"

	"github.com/taigrr/colorhash"
)

// RootInode is the inode number of the mount root.
const RootInode = 1

// InodeTable hands out inode numbers for paths. A path keeps its number
// until it is forgotten, and numbers start from a hash of the path so that
// a remount tends to reproduce them.
type InodeTable struct {
	mu     sync.Mutex
	byPath map[string]uint64
	used   map[uint64]string
}

// NewInodeTable returns a table holding only the root.
func NewInodeTable() *InodeTable {
	return &InodeTable{
		byPath: map[string]uint64{"": RootInode},
		used:   map[uint64]string{RootInode: ""},
	}
}

func hashInode(path string) uint64 {
	h := colorhash.HashString(path)
	if h < 0 {
		h = -h
	}
	ino := uint64(h)
	if ino <= RootInode {
		ino += 2
	}
	return ino
}

// Inode returns the number of path, assigning one on first use. Collisions
// step linearly for the next free number.
func (t *InodeTable) Inode(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ino, ok := t.byPath[path]; ok {
		return ino
	}
	ino := hashInode(path)
	for {
		if _, taken := t.used[ino]; !taken {
			break
		}
		ino++
		if ino <= RootInode {
			ino = RootInode + 1
		}
	}
	t.byPath[path] = ino
	t.used[ino] = path
	return ino
}

// Forget releases the number of path. The root is never forgotten.
func (t *InodeTable) Forget(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.byPath[path]; ok {
		delete(t.byPath, path)
		delete(t.used, ino)
	}
}

// ForgetTree releases path and every path below it.
func (t *InodeTable) ForgetTree(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := path + "/"
	for p, ino := range t.byPath {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(t.byPath, p)
			delete(t.used, ino)
		}
	}
}

// Len returns the number of paths holding a number.
func (t *InodeTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byPath)
}
