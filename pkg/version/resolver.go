package version

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/macrodata/statpipe/pkg/filestore"
)

// Action is the outcome of resolving a slot.
type Action int

const (
	// ActionPublish means the slot is empty and the artifact becomes its
	// first occupant.
	ActionPublish Action = iota
	// ActionSkip means the occupant already carries the incoming version.
	ActionSkip
	// ActionReplace means the occupant must be archived before the artifact
	// is published.
	ActionReplace
)

// String returns the action name for logging.
func (a Action) String() string {
	switch a {
	case ActionPublish:
		return "publish"
	case ActionSkip:
		return "skip"
	case ActionReplace:
		return "replace"
	}
	return "unknown"
}

// Candidate describes an artifact about to be published into a slot.
type Candidate struct {
	Filename string
	Folder   string
	// Edition is the producer-declared edition. Empty (or whitespace) means
	// the artifact versions by download month instead.
	Edition string
}

// Decision is the resolver's verdict for one candidate. Store failures are
// reported as errors from Resolve, not as a Decision.
type Decision struct {
	Action Action

	// VersionType and VersionValue describe the incoming artifact's version,
	// independent of what the occupant carries.
	VersionType  Kind
	VersionValue string

	// Existing is the current occupant. Nil when Action is ActionPublish.
	Existing *filestore.FileRef

	// ExistingSuffix is the archive suffix computed for the occupant.
	ExistingSuffix string

	// SkipReason explains an ActionSkip.
	SkipReason string

	// MissingMetadata reports that the occupant carried no usable version
	// metadata and ExistingSuffix fell back to a timestamp.
	MissingMetadata bool
}

// Suffix returns the version suffix for the incoming artifact,
// e.g. "2025M10_Edition".
func (d *Decision) Suffix() string {
	return d.VersionValue + "_" + string(d.VersionType)
}

// Resolver inspects a slot's occupant and decides how a candidate lands.
type Resolver struct {
	store  filestore.Store
	reader MetadataReader
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(store filestore.Store, reader MetadataReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		reader: reader,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve decides what to do with the candidate. It never mutates the store.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (*Decision, error) {
	return r.resolveAt(ctx, c, r.now())
}

// resolveAt is the testable core of Resolve that accepts a "now" parameter.
func (r *Resolver) resolveAt(ctx context.Context, c Candidate, now time.Time) (*Decision, error) {
	currentMonth := MonthToken(now)

	d := &Decision{}
	hasEdition := strings.TrimSpace(c.Edition) != ""
	if hasEdition {
		d.VersionType = KindEdition
		d.VersionValue = c.Edition
	} else {
		d.VersionType = KindDateDownload
		d.VersionValue = currentMonth
	}

	existing, err := r.store.FindInFolder(ctx, c.Folder, c.Filename)
	if err != nil {
		return nil, fmt.Errorf("resolve %s in folder %s: %w", c.Filename, c.Folder, err)
	}
	if existing == nil {
		d.Action = ActionPublish
		return d, nil
	}
	d.Existing = existing

	content, err := r.store.Download(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: read occupant %s: %w", c.Filename, existing.ID, err)
	}

	meta, err := r.reader.ReadVersionMetadata(content)
	if err != nil {
		// Content that fetched fine but cannot be read as a workbook is not
		// a store failure: degrade to the no-metadata fallback.
		r.logger.Warn("occupant metadata unreadable",
			"file", existing.Name, "folder", c.Folder, "error", err)
		meta = &Metadata{}
	}

	switch {
	case meta.EditionType == string(KindEdition) && meta.Edition != "":
		d.ExistingSuffix = meta.Edition + "_" + string(KindEdition)
		if hasEdition && meta.Edition == c.Edition {
			d.Action = ActionSkip
			d.SkipReason = "Version unchanged"
		} else {
			d.Action = ActionReplace
		}

	case meta.EditionType == string(KindDateDownload):
		switch {
		case meta.DownloadDate == "":
			d.ExistingSuffix = "unknown_" + string(KindDateDownload)
			d.Action = ActionReplace
		default:
			if dt, perr := parseDownloadDate(meta.DownloadDate); perr == nil {
				existingMonth := MonthToken(dt)
				d.ExistingSuffix = existingMonth + "_" + string(KindDateDownload)
				if existingMonth == currentMonth {
					d.Action = ActionSkip
					d.SkipReason = "Version unchanged"
				} else {
					d.Action = ActionReplace
				}
			} else {
				// Keep whatever the sheet carried: "2025-06-..." turns
				// into "2025M06" and the occupant is always archived.
				prefix := meta.DownloadDate
				if len(prefix) > 7 {
					prefix = prefix[:7]
				}
				d.ExistingSuffix = strings.ReplaceAll(prefix, "-", "M") + "_" + string(KindDateDownload)
				d.Action = ActionReplace
			}
		}

	case meta.Edition != "":
		// Legacy occupant: an edition without an edition_type is treated as
		// edition-versioned.
		d.ExistingSuffix = meta.Edition + "_" + string(KindEdition)
		if hasEdition && meta.Edition == c.Edition {
			d.Action = ActionSkip
			d.SkipReason = "Version unchanged"
		} else {
			d.Action = ActionReplace
		}

	default:
		d.ExistingSuffix = now.Format("20060102_150405") + "_ErrorNoMetadata"
		d.Action = ActionReplace
		d.MissingMetadata = true
		r.logger.Warn("existing file has no edition or download date, archiving with timestamp suffix",
			"file", existing.Name, "folder", c.Folder)
	}

	return d, nil
}

// downloadDateLayouts are the timestamp formats accepted for the
// download_date metadata value. The producers write the first one.
var downloadDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDownloadDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range downloadDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized download date %q", s)
}
