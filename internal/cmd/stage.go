package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synfig/synfig-vfs/container"
	"github.com/synfig/synfig-vfs/staging"
	"github.com/synfig/synfig-vfs/vfs"
)

// metaContainer is the session metadata key holding the absolute path of
// the container a session edits.
const metaContainer = "container"

var errNoSession = errors.New("no staging session")

// mountArchive stacks a container over the directory dir: names starting
// with "#" address the container, all others address files next to it.
func mountArchive(dir string) staging.MountFunc {
	return func(c *container.Container) vfs.FileSystem {
		g := vfs.NewGroup(vfs.NewNative(afero.NewBasePathFs(osFs, dir)))
		g.Register(vfs.ContainerMarker, c, "", false)
		return g
	}
}

func overlayOptions(v *viper.Viper) []staging.Option {
	return []staging.Option{
		staging.WithTempFs(osFs),
		staging.WithTempDir(tempDir(v)),
		staging.WithTag(tag(v)),
		staging.WithKeepFiles(true),
		staging.WithLogger(slog.Default()),
	}
}

// findSession returns the manifest of the session editing archive.
func findSession(v *viper.Viper, archive string) (string, error) {
	manifests, err := staging.ScanTempDir(osFs, tempDir(v), tag(v))
	if err != nil {
		return "", err
	}
	for _, m := range manifests {
		o, err := staging.Open(nil, m, overlayOptions(v)...)
		if err != nil {
			slog.Debug("skipping unreadable session", "manifest", m, "error", err)
			continue
		}
		if o.Meta(metaContainer) == archive {
			return m, nil
		}
	}
	return "", fmt.Errorf("%s: %w", archive, errNoSession)
}

// session is a staging overlay bound to an open container.
type session struct {
	path    string
	archive *container.Container
	overlay *staging.Overlay
}

// openSession opens the container at path and the session editing it. The
// session is looked up by its container unless manifest names one. With
// create a new session is started when none exists.
func openSession(v *viper.Viper, path, manifest string, create bool) (*session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	c, err := openArchive(abs)
	if err != nil {
		return nil, err
	}
	target := mountArchive(filepath.Dir(abs))(c)

	if manifest == "" {
		manifest, err = findSession(v, abs)
		if err != nil && !(create && errors.Is(err, errNoSession)) {
			c.Close()
			return nil, err
		}
	}

	var o *staging.Overlay
	if manifest != "" {
		o, err = staging.Open(target, manifest, overlayOptions(v)...)
	} else {
		o, err = staging.New(target, overlayOptions(v)...)
		if err == nil {
			o.SetMeta(metaContainer, abs)
		}
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	return &session{path: abs, archive: c, overlay: o}, nil
}

func (s *session) close() error {
	return s.archive.Close()
}

// NewStageCmd creates the stage command and its subcommands.
func NewStageCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Collect changes to a container and commit them later",
		Long: `Collect changes to a container in a staging session and commit or
discard them later.

Staged names starting with "#" address the inside of the container, for
example "#images/a.png" or "#/images/a.png". Other names address files in
the directory that holds the container. A session survives between
invocations until it is committed or discarded.`,
	}

	cmd.AddCommand(
		newStagePutCmd(v),
		newStageMkdirCmd(v),
		newStageRmCmd(v),
		newStageStatusCmd(v),
		newStageCommitCmd(v),
		newStageDiscardCmd(v),
		newStageSessionsCmd(v),
		newStageSaveAsCmd(v),
	)
	return cmd
}

func newStagePutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "put ARCHIVE NAME [SRC]",
		Short: "Stage a file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := ""
			if len(args) == 3 {
				src = args[2]
			}
			r, err := openSource(cmd, src)
			if err != nil {
				return err
			}
			defer r.Close()

			s, err := openSession(v, args[0], "", true)
			if err != nil {
				return err
			}
			defer s.close()

			ws, err := s.overlay.GetWriteStream(args[1])
			if err != nil {
				return err
			}
			if _, err := io.Copy(ws, r); err != nil {
				ws.Close()
				return err
			}
			return ws.Close()
		},
	}
}

func newStageMkdirCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir ARCHIVE DIR",
		Short: "Stage a directory and its missing parents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(v, args[0], "", true)
			if err != nil {
				return err
			}
			defer s.close()
			return vfs.DirectoryCreateRecursive(s.overlay, args[1])
		},
	}
}

func newStageRmCmd(v *viper.Viper) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm ARCHIVE NAME",
		Short: "Stage the removal of a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(v, args[0], "", true)
			if err != nil {
				return err
			}
			defer s.close()

			name := vfs.CanonicalName(args[1])
			if !vfs.Exists(s.overlay, name) {
				return fmt.Errorf("%s: %w", name, vfs.ErrNotFound)
			}
			if recursive {
				return vfs.RemoveRecursive(s.overlay, name)
			}
			return s.overlay.FileRemove(name)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Remove directories and their contents")

	return cmd
}

// statusCode classifies a pending change for display.
func statusCode(target vfs.FileSystem, e staging.Entry) string {
	switch {
	case e.IsRemoved:
		return "D"
	case e.IsDirectory:
		return "A"
	case target.IsFile(e.Name):
		return "M"
	}
	return "A"
}

func newStageStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status ARCHIVE",
		Short: "Show the staged changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, err := openSession(v, args[0], "", false)
			if errors.Is(err, errNoSession) {
				fmt.Fprintln(out, "nothing staged")
				return nil
			}
			if err != nil {
				return err
			}
			defer s.close()

			entries := s.overlay.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(out, "nothing staged")
				return nil
			}
			target := s.overlay.Target()
			for _, e := range entries {
				name := e.Name
				if e.IsDirectory && !e.IsRemoved {
					name += "/"
				}
				fmt.Fprintf(out, "%s %s\n", statusCode(target, e), name)
			}
			return nil
		},
	}
}

func newStageCommitCmd(v *viper.Viper) *cobra.Command {
	var manifest string

	cmd := &cobra.Command{
		Use:   "commit ARCHIVE",
		Short: "Apply the staged changes and save a new version",
		Long: `Apply the staged changes and save a new version of the container.

Changes that cannot be applied stay staged and the command fails. Whatever
was applied is saved nevertheless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(v, args[0], manifest, false)
			if err != nil {
				return err
			}
			defer s.close()

			commitErr := s.overlay.SaveChanges()
			if err := s.archive.Save(); err != nil {
				return errors.Join(commitErr, err)
			}
			if commitErr != nil {
				return commitErr
			}
			return s.overlay.DiscardChanges()
		},
	}

	cmd.Flags().StringVar(&manifest, "session", "", "Manifest of the session to commit (see stage sessions)")

	return cmd
}

func newStageDiscardCmd(v *viper.Viper) *cobra.Command {
	var manifest string

	cmd := &cobra.Command{
		Use:   "discard ARCHIVE",
		Short: "Drop the staged changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(v, args[0], manifest, false)
			if err != nil {
				return err
			}
			defer s.close()
			return s.overlay.DiscardChanges()
		},
	}

	cmd.Flags().StringVar(&manifest, "session", "", "Manifest of the session to discard (see stage sessions)")

	return cmd
}

func newStageSessionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the staging sessions left in the temp directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests, err := staging.ScanTempDir(osFs, tempDir(v), tag(v))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range manifests {
				o, err := staging.Open(nil, m, overlayOptions(v)...)
				if err != nil {
					fmt.Fprintf(out, "%s\tunreadable: %v\n", m, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%d changes\n", m, o.Meta(metaContainer), len(o.Entries()))
			}
			return nil
		},
	}
}

func newStageSaveAsCmd(v *viper.Viper) *cobra.Command {
	var asCopy bool

	cmd := &cobra.Command{
		Use:   "saveas ARCHIVE DEST",
		Short: "Save the container with the staged changes under a new name",
		Long: `Copy the container to DEST, apply the staged changes to the copy and save it.

Unless --copy is given the session is consumed and follows the new
container. With --copy the session stays as it is.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			s, err := openSession(v, args[0], "", true)
			if err != nil {
				return err
			}
			defer s.close()

			dst, err := s.overlay.SaveAs(s.archive, dest, asCopy, mountArchive(filepath.Dir(s.path)))
			if err != nil {
				return err
			}
			if dst != s.archive {
				defer dst.Close()
			}
			if asCopy {
				if !s.overlay.Pending() {
					// the session only existed for this call
					return s.overlay.DiscardChanges()
				}
				return nil
			}
			if s.overlay.Pending() {
				s.overlay.SetMeta(metaContainer, dest)
				return nil
			}
			return s.overlay.DiscardChanges()
		},
	}

	cmd.Flags().BoolVar(&asCopy, "copy", false, "Keep the staged changes after saving")

	return cmd
}
