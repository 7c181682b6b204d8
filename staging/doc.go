// Package staging buffers changes to any vfs.FileSystem until they are
// committed.
//
// An Overlay keeps a pending map with one Entry per touched path: file
// content lives in a temporary file, directories are plain entries and
// removals are tombstones. Queries consult the map first and fall through to
// the target for untouched paths.
//
// SaveChanges applies the map in three passes. Removals and type conflicts
// go first, deepest path first; then directories, parents first; then the
// files, whose missing parents are created on the way. Whatever cannot be
// applied stays pending and is reported as vfs.ErrPartialCommit.
//
// After every change the map and the session metadata are written to a
// gzip compressed XML manifest next to the temporary files:
//
//	<temporary-file-system>
//	  <meta><entry><key/><value/></entry></meta>
//	  <files><entry><name/><tmp-basename/><is-directory/><is-removed/></entry></files>
//	</temporary-file-system>
//
// ScanTempDir finds the manifests of sessions that were never committed or
// discarded, and Open resumes one of them.
package staging
