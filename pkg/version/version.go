// Package version decides what happens when a pipeline wants to publish
// into an output slot. A slot is one (folder, filename) pair whose live file
// carries the _LATEST marker; the resolver compares the occupant's embedded
// version metadata against the incoming artifact and yields a publish, skip,
// or replace decision.
package version

import "time"

// CurrentTag marks the live file in a slot. Archiving substitutes the
// occupant's version suffix for this tag.
const CurrentTag = "_LATEST"

// Kind tells how a file's version is tracked.
type Kind string

const (
	// KindEdition versions by a producer-declared edition string.
	KindEdition Kind = "Edition"
	// KindDateDownload versions by the month the file was downloaded.
	KindDateDownload Kind = "DateDownload"
)

// Metadata is the version-bearing subset of a stored workbook's metadata
// sheet. Empty fields mean the sheet did not carry the key.
type Metadata struct {
	Edition      string
	EditionType  string
	DownloadDate string
}

// MetadataReader extracts version metadata from an occupant file's bytes.
// It is satisfied by workbook.Reader; declared here so this package carries
// no spreadsheet dependency.
type MetadataReader interface {
	ReadVersionMetadata(content []byte) (*Metadata, error)
}

// MonthToken formats a time as the month token used in version values and
// archive suffixes, e.g. "2025M06". The month is always two digits.
func MonthToken(t time.Time) string {
	return t.Format("2006M01")
}
