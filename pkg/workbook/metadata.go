package workbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/macrodata/statpipe/pkg/version"
)

const (
	// metadataSheet is the canonical metadata sheet name. Some producers
	// label the sheet in English instead, so the reader tries both.
	metadataSheet         = "Metadati"
	metadataSheetFallback = "Metadata"

	// metadataScanRows bounds the key/value scan below the header row.
	// Version keys sit at the top of the sheet; the variable-description
	// blocks further down are not scanned.
	metadataScanRows = 15
)

// Recognized version metadata keys, matched case-insensitively.
const (
	keyEdition      = "edition"
	keyEditionType  = "edition_type"
	keyDownloadDate = "download_date"
)

// Reader extracts version metadata from workbook bytes. It satisfies
// version.MetadataReader.
type Reader struct{}

// ReadVersionMetadata opens the content as a workbook and scans the metadata
// sheet's top rows for the version keys. Content that is not a workbook, or
// a workbook without a metadata sheet, is an error; the resolver degrades
// such occupants to the no-metadata path.
func (Reader) ReadVersionMetadata(content []byte) (*version.Metadata, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(metadataSheet)
	if err != nil {
		rows, err = f.GetRows(metadataSheetFallback)
		if err != nil {
			return nil, fmt.Errorf("no metadata sheet (%s or %s)", metadataSheet, metadataSheetFallback)
		}
	}

	meta := &version.Metadata{}
	// Row 0 is the key/value header.
	for i := 1; i < len(rows) && i <= metadataScanRows; i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row[0]))
		var value string
		if len(row) > 1 {
			value = strings.TrimSpace(row[1])
		}
		switch key {
		case keyEdition:
			meta.Edition = value
		case keyEditionType:
			meta.EditionType = value
		case keyDownloadDate:
			meta.DownloadDate = value
		}
	}
	return meta, nil
}

// Compile-time interface check.
var _ version.MetadataReader = Reader{}
