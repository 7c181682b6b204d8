package cmd

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synfig/synfig-vfs/fusefs"
	"github.com/synfig/synfig-vfs/vfs"
	"github.com/synfig/synfig-vfs/version"
)

// NewMountCmd creates and returns the mount subcommand for the svfs CLI.
// It serves the inside of a container at a mountpoint.
func NewMountCmd(v *viper.Viper) *cobra.Command {
	var (
		commit bool
		direct bool
	)

	cmd := &cobra.Command{
		Use:   "mount ARCHIVE MOUNTPOINT",
		Short: "Mount a container with FUSE",
		Long: `Mount the contents of a container at the specified mountpoint.

Changes made through the mountpoint are staged. On unmount they are
committed as a new version when --commit is given; otherwise the session
is kept and can be inspected with "stage status" and applied later with
"stage commit". With --direct changes go straight into the container and a
new version is saved on unmount.`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			runMount(v, args[0], args[1], commit, direct)
		},
	}

	cmd.Flags().BoolVar(&commit, "commit", false, "Commit the staged changes on unmount")
	cmd.Flags().BoolVar(&direct, "direct", false, "Write to the container without staging")

	return cmd
}

// pathsOverlap reports whether one of the paths contains the other.
func pathsOverlap(path1, path2 string) bool {
	abs1, err := filepath.Abs(path1)
	if err != nil {
		abs1 = filepath.Clean(path1)
	}
	abs2, err := filepath.Abs(path2)
	if err != nil {
		abs2 = filepath.Clean(path2)
	}
	if abs1 == abs2 {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(abs1, strings.TrimSuffix(abs2, sep)+sep) ||
		strings.HasPrefix(abs2, strings.TrimSuffix(abs1, sep)+sep)
}

func runMount(v *viper.Viper, archive, mountpoint string, commit, direct bool) {
	fmt.Printf("svfs %s starting...\n", version.GetFullVersion())

	if pathsOverlap(archive, mountpoint) {
		log.Fatalf("Container %s lies inside mountpoint %s", archive, mountpoint)
	}
	if !direct && pathsOverlap(tempDir(v), mountpoint) {
		log.Fatalf("Staging directory %s overlaps mountpoint %s", tempDir(v), mountpoint)
	}

	var (
		root    vfs.FileSystem
		sess    *session
		finish  func() error
		archAbs string
	)
	if direct {
		c, err := openArchive(archive)
		if err != nil {
			log.Fatalf("Failed to open container: %v", err)
		}
		defer c.Close()
		archAbs = c.Path()
		root = c
		finish = c.Save
	} else {
		var err error
		sess, err = openSession(v, archive, "", true)
		if err != nil {
			log.Fatalf("Failed to open staging session: %v", err)
		}
		defer sess.close()
		archAbs = sess.path

		// the mount root is the inside of the container
		g := vfs.NewGroup(nil)
		g.Register("", sess.overlay, vfs.ContainerMarker, false)
		root = g
		finish = func() error {
			if !commit {
				if sess.overlay.Pending() {
					log.Printf("Changes kept in session %s", sess.overlay.ManifestPath())
					return nil
				}
				return sess.overlay.DiscardChanges()
			}
			commitErr := sess.overlay.SaveChanges()
			if err := sess.archive.Save(); err != nil {
				return errors.Join(commitErr, err)
			}
			if commitErr != nil {
				return commitErr
			}
			return sess.overlay.DiscardChanges()
		}
	}

	filesystem := fusefs.New(root, fusefs.WithLogger(slog.Default()))

	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("svfs"),
		fuse.Subtype("svfs"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		if err := fuse.Unmount(mountpoint); err != nil {
			log.Printf("Failed to unmount %s: %v", mountpoint, err)
		}
	}()

	log.Printf("svfs %s mounted at %s (container: %s)", version.GetVersion(), mountpoint, archAbs)
	if err := fs.Serve(c, filesystem); err != nil {
		log.Fatal(err)
	}

	if err := finish(); err != nil {
		log.Fatalf("Failed to save changes: %v", err)
	}
	log.Println("Shutdown complete")
}
