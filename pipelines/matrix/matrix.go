// Package matrix runs code-by-period index pipelines declared as dataset
// definitions. One definition yields one workbook: a Metadata sheet and a
// Data sheet whose rows are dimension code combinations and whose columns
// are the observed monthly periods.
package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/macrodata/statpipe/pkg/dataset"
	"github.com/macrodata/statpipe/pkg/pipeline"
	"github.com/macrodata/statpipe/pkg/sdmx"
	"github.com/macrodata/statpipe/pkg/workbook"
)

const (
	metaSheet = "Metadata"
	dataSheet = "Data"

	metaKeyWidth   = 20
	metaValueWidth = 80

	periodColWidth    = 10
	hierarchyColWidth = 8

	// maxURLCell keeps wildcard query URLs from blowing up the metadata
	// sheet; anything longer is cut and marked.
	maxURLCell = 500
)

// Pipeline materializes one dataset definition.
type Pipeline struct {
	def dataset.Definition
	env pipeline.Env
	now func() time.Time
}

// New builds a pipeline from a definition, filling defaulted fields.
// Validation happens at Init so a bad definition surfaces as a startup
// error instead of a panic.
func New(def dataset.Definition) *Pipeline {
	def.Normalize()
	return &Pipeline{def: def, now: time.Now}
}

// Register builds the pipeline and adds it to the shared registry.
func Register(def dataset.Definition) {
	pipeline.Register(New(def))
}

func (p *Pipeline) Name() string { return p.def.Name }

func (p *Pipeline) Description() string {
	if p.def.DisplayName != "" {
		return p.def.DisplayName
	}
	return p.def.Name
}

func (p *Pipeline) Init(ctx context.Context, env pipeline.Env) error {
	if err := p.def.Validate(); err != nil {
		return fmt.Errorf("dataset %s: %w", p.def.Name, err)
	}
	p.env = env
	return nil
}

// Produce downloads the dataset, resolves code names through the flow's
// codelists and assembles the workbook.
func (p *Pipeline) Produce(ctx context.Context) (*pipeline.Artifact, error) {
	logger := p.logger()

	q := sdmx.DataQuery{
		Flow:        p.def.Dataflow.ID,
		Key:         p.def.Dataflow.Key,
		StartPeriod: p.def.Dataflow.StartPeriod,
		EndPeriod:   p.def.Dataflow.EndPeriod,
	}

	logger.Info("downloading dataset", "flow", q.Flow, "key", q.Key)
	ds, err := p.env.SDMX.FetchDataset(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	m := p.collect(ds)
	if len(m.rowKeys) == 0 {
		return nil, fmt.Errorf("no observations carry dimensions %s", strings.Join(p.dimensionIDs(), ", "))
	}
	logger.Info("dataset collected", "rows", len(m.rowKeys), "periods", len(m.periods))

	// Name lookups degrade to bare codes when the structure endpoint is
	// unavailable.
	names := p.fetchNames(ctx, logger)

	content, err := p.buildWorkbook(m, names)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	return &pipeline.Artifact{
		Filename:     p.def.Filename,
		Folder:       p.env.Folder(p.def.FolderKey),
		Content:      content,
		ContentType:  workbook.ContentType,
		Variables:    len(m.rowKeys),
		Observations: len(m.rowKeys) * len(m.periods),
		PeriodRange:  fmt.Sprintf("%s → %s", m.periods[0], m.periods[len(m.periods)-1]),
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.env.Logger != nil {
		return p.env.Logger
	}
	return slog.Default()
}

func (p *Pipeline) dimensionIDs() []string {
	ids := make([]string, len(p.def.Dimensions))
	for i, d := range p.def.Dimensions {
		ids[i] = d.ID
	}
	return ids
}

// matrixData is the pivoted dataset: one row per dimension combination,
// one column per period.
type matrixData struct {
	rowKeys []string            // sorted join of dimension codes
	codes   map[string][]string // rowKey -> codes in definition order
	cells   map[string]map[string]float64
	periods []string // sorted month tokens
}

func (p *Pipeline) collect(ds *sdmx.Dataset) *matrixData {
	dimIDs := p.dimensionIDs()
	m := &matrixData{
		codes: make(map[string][]string),
		cells: make(map[string]map[string]float64),
	}
	periodSet := make(map[string]bool)

	for _, s := range ds.Series {
		codes := make([]string, len(dimIDs))
		complete := true
		for i, id := range dimIDs {
			codes[i] = s.Dimension(id)
			if codes[i] == "" {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		// NUL joins sort like element-wise tuple comparison.
		key := strings.Join(codes, "\x00")
		row := m.cells[key]
		if row == nil {
			row = make(map[string]float64)
			m.cells[key] = row
			m.codes[key] = codes
		}

		for _, obs := range s.Obs {
			if obs.Missing {
				continue
			}
			period := monthToken(obs.Period)
			row[period] = obs.Value
			periodSet[period] = true
		}
	}

	for key := range m.cells {
		m.rowKeys = append(m.rowKeys, key)
	}
	sort.Strings(m.rowKeys)

	for period := range periodSet {
		m.periods = append(m.periods, period)
	}
	sort.Strings(m.periods)
	return m
}

func (p *Pipeline) fetchNames(ctx context.Context, logger *slog.Logger) map[string]sdmx.Codelist {
	ids := make([]string, 0, len(p.def.Dimensions))
	for _, d := range p.def.Dimensions {
		if d.Codelist != "" && d.NameColumn != "" {
			ids = append(ids, d.Codelist)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	names, err := p.env.SDMX.FetchCodelists(ctx, p.def.Dataflow.ID, ids...)
	if err != nil {
		logger.Warn("codelist fetch failed, keeping bare codes", "error", err)
		return nil
	}
	return names
}

func (p *Pipeline) buildWorkbook(m *matrixData, names map[string]sdmx.Codelist) ([]byte, error) {
	header := make([]string, 0, len(p.def.Dimensions)*2+1+len(m.periods))
	widths := make([]float64, 0, cap(header))
	for _, d := range p.def.Dimensions {
		header = append(header, d.Column)
		widths = append(widths, d.Width)
		if d.NameColumn != "" {
			header = append(header, d.NameColumn)
			widths = append(widths, d.NameWidth)
		}
	}
	if p.def.Hierarchy != nil {
		header = append(header, p.def.Hierarchy.Column)
		widths = append(widths, hierarchyColWidth)
	}
	for _, period := range m.periods {
		header = append(header, period)
		widths = append(widths, periodColWidth)
	}

	distinct := make([]map[string]bool, len(p.def.Dimensions))
	for i := range distinct {
		distinct[i] = make(map[string]bool)
	}

	rows := make([][]any, 0, len(m.rowKeys))
	for _, key := range m.rowKeys {
		codes := m.codes[key]
		row := make([]any, 0, len(header))
		for i, d := range p.def.Dimensions {
			distinct[i][codes[i]] = true
			row = append(row, codes[i])
			if d.NameColumn != "" {
				row = append(row, codeName(names[d.Codelist], codes[i]))
			}
		}
		if p.def.Hierarchy != nil {
			// The level is derived from the first dimension's code.
			row = append(row, hierarchyLevel(codes[0], p.def.Hierarchy.Roots))
		}
		values := m.cells[key]
		for _, period := range m.periods {
			if v, ok := values[period]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}

	wb := workbook.NewBuilder()
	if err := wb.AddKVSheet(metaSheet, "key", "value", p.metadataRows(m, distinct, len(rows)), metaKeyWidth, metaValueWidth); err != nil {
		return nil, err
	}
	if err := wb.AddTableSheet(dataSheet, workbook.Table{Header: header, Rows: rows, Widths: widths}); err != nil {
		return nil, err
	}
	return wb.Bytes()
}

func (p *Pipeline) metadataRows(m *matrixData, distinct []map[string]bool, combinations int) []workbook.KV {
	q := sdmx.DataQuery{
		Flow:        p.def.Dataflow.ID,
		Key:         p.def.Dataflow.Key,
		StartPeriod: p.def.Dataflow.StartPeriod,
		EndPeriod:   p.def.Dataflow.EndPeriod,
	}
	dataURL := p.env.SDMX.DataURL(q)
	if len(dataURL) > maxURLCell {
		dataURL = dataURL[:maxURLCell] + "..."
	}

	md := p.def.Metadata
	rows := []workbook.KV{
		{Key: "edition", Value: ""},
		{Key: "edition_type", Value: "DateDownload"},
		{Key: "download_date", Value: p.now().Format("2006-01-02 15:04:05")},
		{Key: "source_path", Value: md.SourcePath},
		{Key: "source_path_it", Value: md.SourcePathIT},
		{Key: "dataflow_url", Value: p.env.SDMX.StructureURL(p.def.Dataflow.ID)},
		{Key: "data_api_url", Value: dataURL},
		{Key: "measure", Value: md.Measure},
		{Key: "measure_code", Value: md.MeasureCode},
		{Key: "frequency", Value: md.Frequency},
		{Key: "frequency_code", Value: md.FrequencyCode},
		{Key: "base_year", Value: md.BaseYear},
	}
	if md.Territory != "" {
		rows = append(rows, workbook.KV{Key: "territory", Value: md.Territory})
	}
	rows = append(rows,
		workbook.KV{Key: "start_period", Value: m.periods[0]},
		workbook.KV{Key: "end_period", Value: m.periods[len(m.periods)-1]},
	)
	for i, d := range p.def.Dimensions {
		if d.CountKey != "" {
			rows = append(rows, workbook.KV{Key: d.CountKey, Value: len(distinct[i])})
		}
	}
	if len(p.def.Dimensions) > 1 {
		rows = append(rows, workbook.KV{Key: "n_combinations", Value: combinations})
	}
	rows = append(rows, workbook.KV{Key: "n_periods", Value: len(m.periods)})
	return rows
}

// monthToken rewrites ISO month periods into the compact form used for
// column headers, "2024-01" -> "2024M01".
func monthToken(period string) string {
	return strings.ReplaceAll(period, "-", "M")
}

// hierarchyLevel maps a classification code to its depth. Root codes sit
// at level 0; otherwise depth is the digit count left after stripping
// leading zeros, so "01" is level 1 and "011" level 2.
func hierarchyLevel(code string, roots []string) int {
	for _, r := range roots {
		if code == r {
			return 0
		}
	}
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" {
		return 1
	}
	return len(trimmed)
}

func codeName(cl sdmx.Codelist, code string) string {
	if name, ok := cl[code]; ok {
		return name
	}
	return code
}

var _ pipeline.Pipeline = (*Pipeline)(nil)
