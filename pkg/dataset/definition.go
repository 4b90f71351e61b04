// Package dataset holds the YAML-defined dataset definitions interpreted by
// the matrix pipeline engine, and the sources that load extra definitions at
// startup: a local directory and a git repository.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Defaults applied to definitions that leave the common fields empty. The
// statistics API serves almost everything under one agency and version, and
// the widest period window the pipelines use covers all of them.
const (
	DefaultAgency      = "IT1"
	DefaultFlowVersion = "1.0"
	DefaultStartPeriod = "1995-01-01"
	DefaultEndPeriod   = "2030-12-31"
)

// defaultHierarchyRoots are the synthetic all-items codes that sit at level
// zero of the COICOP hierarchy.
var defaultHierarchyRoots = []string{"00", "00ST", "OR0"}

// Definition describes one matrix dataset: which dataflow to fetch, which
// series-key dimensions form the row key, and how to label the output.
type Definition struct {
	// Name is the pipeline name the definition registers under.
	Name string `yaml:"name"`

	// DisplayName is a human-readable title used in logs.
	DisplayName string `yaml:"displayName"`

	// Filename is the published workbook name, e.g. "NIC_ECOICOP_LATEST.xlsx".
	Filename string `yaml:"filename"`

	// FolderKey routes the published file (quarterly, monthly, annual).
	// Empty publishes to the main folder.
	FolderKey string `yaml:"folder"`

	Dataflow   Dataflow    `yaml:"dataflow"`
	Dimensions []Dimension `yaml:"dimensions"`

	// Hierarchy adds a level column derived from the first dimension's
	// code, for classification trees.
	Hierarchy *Hierarchy `yaml:"hierarchy"`

	Metadata Metadata `yaml:"metadata"`
}

// Dataflow identifies the series query.
type Dataflow struct {
	Agency  string `yaml:"agency"`
	ID      string `yaml:"id"`
	Version string `yaml:"version"`

	// Key is the dot-separated dimension filter with empty positions as
	// wildcards, e.g. "M.IT..39.4".
	Key string `yaml:"key"`

	StartPeriod string `yaml:"startPeriod"`
	EndPeriod   string `yaml:"endPeriod"`
}

// Dimension is one series-key dimension that becomes a row-key column.
type Dimension struct {
	// ID is the dimension id in the series key, e.g. "E_COICOP".
	ID string `yaml:"id"`

	// Column is the code column header, e.g. "CODE".
	Column string `yaml:"column"`

	// NameColumn, when set, adds a display-name column resolved from the
	// codelist.
	NameColumn string `yaml:"nameColumn"`

	// Codelist resolves codes to display names (en, falling back to it,
	// falling back to the code).
	Codelist string `yaml:"codelist"`

	// CountKey, when set, adds a metadata row with the number of distinct
	// codes seen, e.g. "n_products".
	CountKey string `yaml:"countKey"`

	// Column widths in the output sheet. Zero selects the defaults.
	Width     float64 `yaml:"width"`
	NameWidth float64 `yaml:"nameWidth"`
}

// Hierarchy configures the derived level column.
type Hierarchy struct {
	// Column is the header of the level column, e.g. "LEVEL".
	Column string `yaml:"column"`

	// Roots are codes pinned to level zero.
	Roots []string `yaml:"roots"`
}

// Metadata is the fixed descriptive block written to the metadata sheet.
type Metadata struct {
	SourcePath    string `yaml:"sourcePath"`
	SourcePathIT  string `yaml:"sourcePathIT"`
	Measure       string `yaml:"measure"`
	MeasureCode   string `yaml:"measureCode"`
	Frequency     string `yaml:"frequency"`
	FrequencyCode string `yaml:"frequencyCode"`
	BaseYear      string `yaml:"baseYear"`
	Territory     string `yaml:"territory"`
}

// Normalize fills the omitted common fields in place. ParseDefinitions
// applies it to every document; callers building definitions in code
// should call it before use.
func (d *Definition) Normalize() {
	if d.Dataflow.Agency == "" {
		d.Dataflow.Agency = DefaultAgency
	}
	if d.Dataflow.Version == "" {
		d.Dataflow.Version = DefaultFlowVersion
	}
	if d.Dataflow.StartPeriod == "" {
		d.Dataflow.StartPeriod = DefaultStartPeriod
	}
	if d.Dataflow.EndPeriod == "" {
		d.Dataflow.EndPeriod = DefaultEndPeriod
	}
	for i := range d.Dimensions {
		if d.Dimensions[i].Width == 0 {
			d.Dimensions[i].Width = 12
		}
		if d.Dimensions[i].NameWidth == 0 {
			d.Dimensions[i].NameWidth = 40
		}
	}
	if d.Hierarchy != nil && len(d.Hierarchy.Roots) == 0 {
		d.Hierarchy.Roots = defaultHierarchyRoots
	}
}

// Validate rejects definitions the engine cannot run.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("dataset: name is required")
	}
	if d.Filename == "" {
		return fmt.Errorf("dataset %q: filename is required", d.Name)
	}
	if d.Dataflow.ID == "" {
		return fmt.Errorf("dataset %q: dataflow id is required", d.Name)
	}
	if len(d.Dimensions) == 0 {
		return fmt.Errorf("dataset %q: at least one dimension is required", d.Name)
	}
	for _, dim := range d.Dimensions {
		if dim.ID == "" || dim.Column == "" {
			return fmt.Errorf("dataset %q: dimensions need both id and column", d.Name)
		}
	}
	if d.Hierarchy != nil && d.Hierarchy.Column == "" {
		return fmt.Errorf("dataset %q: hierarchy column is required", d.Name)
	}
	return nil
}

// ParseDefinitions decodes one or more YAML documents into validated
// definitions with defaults applied.
func ParseDefinitions(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var defs []Definition
	for i := 0; ; i++ {
		var def Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: failed to parse document %d: %w", i+1, err)
		}

		def.Normalize()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
