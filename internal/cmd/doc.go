// Package cmd provides the command-line interface implementation for svfs.
//
// It uses the Cobra library for command structure and Fang for styling, and
// reads its settings through Viper from flags, SVFS_* environment variables
// and $XDG_CONFIG_HOME/svfs/config.yaml.
//
// Each command is implemented by a constructor returning a *cobra.Command:
//   - archive.go: direct edits of a container, one saved version per call
//   - history.go: history, rollback and the concurrent verify
//   - stage.go: staging sessions bound to a container through their metadata
//   - mount.go: FUSE mounting of a container, staged or direct
//
// All file access goes through the package level afero file system so that
// the commands can run against an in-memory tree.
package cmd
