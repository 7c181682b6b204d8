package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synfig/synfig-vfs/container"
	"github.com/synfig/synfig-vfs/vfs"
)

// osFs is the file system every command works on. Tests swap it for an
// in-memory one.
var osFs = afero.NewOsFs()

func openArchive(path string, opts ...container.Option) (*container.Container, error) {
	c := container.New(append([]container.Option{container.WithFs(osFs)}, opts...)...)
	if err := c.Open(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return c, nil
}

// editArchive opens path, runs fn and saves a new version if fn succeeded.
func editArchive(path string, fn func(c *container.Container) error, opts ...container.Option) error {
	c, err := openArchive(path, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := fn(c); err != nil {
		return err
	}
	return c.Save()
}

// NewCreateCmd creates the create subcommand.
func NewCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create ARCHIVE",
		Short: "Create an empty container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ok, _ := afero.Exists(osFs, args[0]); ok {
				return fmt.Errorf("%s: %w", args[0], vfs.ErrExists)
			}
			c := container.New(container.WithFs(osFs))
			if err := c.Create(args[0]); err != nil {
				return err
			}
			defer c.Close()
			return c.Save()
		},
	}
}

// NewLsCmd creates the ls subcommand.
func NewLsCmd() *cobra.Command {
	var (
		long      bool
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "ls ARCHIVE [DIR]",
		Short: "List the contents of a container",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openArchive(args[0], container.ReadOnly())
			if err != nil {
				return err
			}
			defer c.Close()

			dir := ""
			if len(args) == 2 {
				dir = vfs.FixSlashes(args[1])
			}
			var names []string
			if recursive {
				err = vfs.Walk(c, dir, func(name string, isDir bool) error {
					names = append(names, name)
					return nil
				})
			} else {
				var children []string
				children, err = c.DirectoryScan(dir)
				for _, child := range children {
					names = append(names, vfs.Join(dir, child))
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				e, _ := c.Entry(name)
				switch {
				case !long && e.IsDirectory:
					fmt.Fprintf(out, "%s/\n", name)
				case !long:
					fmt.Fprintln(out, name)
				case e.IsDirectory:
					fmt.Fprintf(out, "d %10s %-8s %s %s/\n", "-", "-", e.Modified.Format("2006-01-02 15:04"), name)
				default:
					fmt.Fprintf(out, "- %10d %-8s %s %s\n", e.UncompressedSize, container.MethodName(e.Compression), e.Modified.Format("2006-01-02 15:04"), name)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show size, compression and modification time")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "List subdirectories recursively")

	return cmd
}

// NewCatCmd creates the cat subcommand.
func NewCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat ARCHIVE NAME",
		Short: "Print a file stored in a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openArchive(args[0], container.ReadOnly())
			if err != nil {
				return err
			}
			defer c.Close()

			rs, err := c.GetReadStream(vfs.FixSlashes(args[1]))
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), rs)
			if cerr := rs.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
}

// openSource opens a local file, or standard input for "-" and "".
func openSource(cmd *cobra.Command, src string) (io.ReadCloser, error) {
	if src == "" || src == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return osFs.Open(src)
}

// NewPutCmd creates the put subcommand.
func NewPutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "put ARCHIVE NAME [SRC]",
		Short: "Store a local file in a container",
		Long: `Store a local file in a container and save a new version.

SRC defaults to standard input. Missing parent directories of NAME are
created. The entry is compressed with the configured method.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := compression(v)
			if err != nil {
				return err
			}
			src := ""
			if len(args) == 3 {
				src = args[2]
			}
			r, err := openSource(cmd, src)
			if err != nil {
				return err
			}
			defer r.Close()

			name := vfs.FixSlashes(args[1])
			return editArchive(args[0], func(c *container.Container) error {
				if err := vfs.DirectoryCreateRecursive(c, vfs.Dir(name)); err != nil {
					return err
				}
				ws, err := c.OpenWriteCompressed(name, method)
				if err != nil {
					return err
				}
				if _, err := io.Copy(ws, r); err != nil {
					ws.Close()
					return err
				}
				return ws.Close()
			})
		},
	}
}

// NewMkdirCmd creates the mkdir subcommand.
func NewMkdirCmd() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir ARCHIVE DIR",
		Short: "Create a directory in a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := vfs.FixSlashes(args[1])
			return editArchive(args[0], func(c *container.Container) error {
				if parents {
					return vfs.DirectoryCreateRecursive(c, name)
				}
				return c.DirectoryCreate(name)
			})
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parent directories")

	return cmd
}

// NewRmCmd creates the rm subcommand.
func NewRmCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm ARCHIVE NAME",
		Short: "Remove a file or directory from a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := vfs.FixSlashes(args[1])
			return editArchive(args[0], func(c *container.Container) error {
				if !vfs.Exists(c, name) {
					return fmt.Errorf("%s: %w", name, vfs.ErrNotFound)
				}
				if recursive {
					return vfs.RemoveRecursive(c, name)
				}
				return c.FileRemove(name)
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Remove directories and their contents")

	return cmd
}

// NewMvCmd creates the mv subcommand.
func NewMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv ARCHIVE FROM TO",
		Short: "Rename a file or directory inside a container",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editArchive(args[0], func(c *container.Container) error {
				return c.FileRename(vfs.FixSlashes(args[1]), vfs.FixSlashes(args[2]))
			})
		},
	}
}
