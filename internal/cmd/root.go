package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synfig/synfig-vfs/version"
)

const (
	groupArchive    = "archive"
	groupStaging    = "staging"
	groupFilesystem = "filesystem"
)

// NewRootCmd creates and returns the root cobra command for the svfs CLI.
// It sets up all subcommands, command groups and the configuration layer.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "svfs",
		Short: "svfs - versioned archive containers with staged editing",
		Long: `svfs manages append-only archive containers and edits them through a
staging area.

Every save appends a new version to the container and links it to the
previous one, so older versions stay readable and can be restored. Changes
can be collected in a staging session first and committed in one go.

Use subcommands to perform different operations:
  - create, ls, cat, put, mkdir, rm, mv: edit a container directly
  - history, rollback, verify: inspect and restore versions
  - stage: collect changes and commit or discard them
  - mount: serve a container through FUSE`,
		Version:           version.GetFullVersion(),
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
	}
	bindConfig(rootCmd, v)

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupArchive,
		Title: "Archive Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupStaging,
		Title: "Staging Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})

	archiveCmds := []*cobra.Command{
		NewCreateCmd(),
		NewLsCmd(),
		NewCatCmd(),
		NewPutCmd(v),
		NewMkdirCmd(),
		NewRmCmd(),
		NewMvCmd(),
		NewHistoryCmd(),
		NewRollbackCmd(),
		NewVerifyCmd(),
	}
	for _, c := range archiveCmds {
		c.GroupID = groupArchive
		rootCmd.AddCommand(c)
	}

	stageCmd := NewStageCmd(v)
	stageCmd.GroupID = groupStaging
	rootCmd.AddCommand(stageCmd)

	mountCmd := NewMountCmd(v)
	mountCmd.GroupID = groupFilesystem
	rootCmd.AddCommand(mountCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintVersion(cmd.OutOrStdout(), "svfs")
		},
	})

	return rootCmd
}
