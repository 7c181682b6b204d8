// Package container implements an append-only archive that keeps every
// saved version of its content.
//
// The storage follows the ZIP record layout: each file is a local header
// followed by its data, and every Save appends a complete central directory
// and an end record. The end record's comment is a small XML document
//
//	<history><prev_storage_size>N</prev_storage_size></history>
//
// naming the offset where the previous version ended, so ReadHistory can
// walk from the newest version back to the first. Any earlier version can be
// opened with OpenFromHistory, rolled back to with Rollback or extracted with
// ExportVersion.
//
// File data is written once and never moved. Replacing or removing a file
// only changes the next central directory; the old bytes remain for the
// versions that still reference them.
package container
