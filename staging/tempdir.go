package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/synfig/synfig-vfs/vfs"
)

const (
	maxIndexedName  = 9999
	maxReserveTries = 25000
	lockSuffix      = ".lock"
)

// SystemTempDir returns the directory named by TEMP, TMP or TMPDIR, in that
// order, falling back to /tmp.
func SystemTempDir() string {
	for _, env := range []string{"TEMP", "TMP", "TMPDIR"} {
		if dir := os.Getenv(env); dir != "" {
			return dir
		}
	}
	return "/tmp"
}

// ScanTempDir returns the manifests of every session with the given tag
// found in dir, sorted by name. Sessions left there belong to processes
// that stopped without committing or discarding. A missing dir holds no
// sessions.
func ScanTempDir(fsys afero.Fs, dir, tag string) ([]string, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := namePrefix + tag + "_"
	var manifests []string
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasPrefix(fi.Name(), prefix) {
			continue
		}
		manifests = append(manifests, filepath.Join(dir, fi.Name()))
	}
	sort.Strings(manifests)
	return manifests, nil
}

// IndexedTempFilename returns the first of name_0001.ext .. name_9999.ext
// that does not exist yet, in the directory of name.
func IndexedTempFilename(fsys afero.Fs, name string) (string, error) {
	dir, file := filepath.Split(name)
	stem, ext := vfs.Stem(file), vfs.Extension(file)
	for i := 1; i <= maxIndexedName; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%04d%s", stem, i, ext))
		if _, err := fsys.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free indexed name for %s: %w", name, vfs.ErrExists)
}

// ReserveTempFilename picks a name prefix<random>suffix in dir that nothing
// uses yet and holds it with a lock file created exclusively, so two
// processes cannot reserve the same name. Release the reservation with
// ReleaseTempFilename once the file exists.
func ReserveTempFilename(fsys afero.Fs, dir, prefix, suffix string) (string, error) {
	for i := 0; i < maxReserveTries; i++ {
		name := filepath.Join(dir, prefix+uuid.NewString()[:8]+suffix)
		lock, err := fsys.OpenFile(name+lockSuffix, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", err
		}
		lock.Close()

		if _, err := fsys.Stat(name); err == nil {
			fsys.Remove(name + lockSuffix)
			continue
		}
		return name, nil
	}
	return "", fmt.Errorf("reserve a name in %s: %w", dir, vfs.ErrExists)
}

// ReleaseTempFilename drops the lock taken by ReserveTempFilename.
func ReleaseTempFilename(fsys afero.Fs, name string) error {
	err := fsys.Remove(name + lockSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
