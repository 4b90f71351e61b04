// Package consumption publishes the quarterly final consumption
// expenditure of households. Two aggregates (domestic and national
// concept) are crossed with two valuations (chain linked 2020, current
// prices); raw and seasonally adjusted figures go to separate sheets.
package consumption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/macrodata/statpipe/pipelines/quarterly"
	"github.com/macrodata/statpipe/pkg/pipeline"
	"github.com/macrodata/statpipe/pkg/sdmx"
	"github.com/macrodata/statpipe/pkg/workbook"
)

const (
	name      = "consumption"
	filename  = "Consumi_famiglie_LATEST.xlsx"
	folderKey = "quarterly"

	flowID      = "163_1226_DF_DCCN_QNA1_3"
	coicopTotal = "CP01_13"
	description = "Spesa per consumi finali delle famiglie"

	// Widest possible window; the flow bounds what comes back.
	startPeriod = "1775-01-01"

	metaSheet     = "Metadati"
	rawSheet      = "Dati_Grezzi"
	adjustedSheet = "Dati_Destagionalizzati"

	valueColWidth = 40
)

type code struct {
	id   string
	name string
}

var (
	aggregates = []code{
		{"P31_D_W0_S14", "Territorio+Estero (residenti)"},
		{"P31_D_W2_S14", "Territorio (residenti+non residenti)"},
	}
	valuations = []code{
		{"L_2020", "Valori concatenati 2020"},
		{"V", "Prezzi correnti"},
	}
	adjustments = []struct {
		id    string
		sheet string
	}{
		{"N", rawSheet},
		{"Y", adjustedSheet},
	}
)

// probeKeyPrefix narrows the edition probe to a single series: first
// aggregate, first valuation, raw data.
func probeKeyPrefix() string {
	return "Q.IT." + aggregates[0].id + "..." + coicopTotal + "." + valuations[0].id + ".N.."
}

// dataKeyPrefix selects every aggregate, valuation and adjustment at
// once; the edition token completes it.
func dataKeyPrefix() string {
	aggIDs := make([]string, len(aggregates))
	for i, a := range aggregates {
		aggIDs[i] = a.id
	}
	valIDs := make([]string, len(valuations))
	for i, v := range valuations {
		valIDs[i] = v.id
	}
	adjIDs := make([]string, len(adjustments))
	for i, a := range adjustments {
		adjIDs[i] = a.id
	}
	return "Q.IT." + strings.Join(aggIDs, "+") + "..." + coicopTotal + "." +
		strings.Join(valIDs, "+") + "." + strings.Join(adjIDs, "+") + ".."
}

// Pipeline downloads and lays out the household consumption accounts.
type Pipeline struct {
	env   pipeline.Env
	now   func() time.Time
	probe func(ctx context.Context, flow, keyPrefix string) (string, error)
}

func New() *Pipeline {
	return &Pipeline{now: time.Now}
}

func init() {
	pipeline.Register(New())
}

func (p *Pipeline) Name() string { return name }

func (p *Pipeline) Description() string {
	return "Quarterly final consumption expenditure of households"
}

func (p *Pipeline) Init(_ context.Context, env pipeline.Env) error {
	p.env = env
	if p.probe == nil {
		p.probe = env.SDMX.FindLatestEdition
	}
	return nil
}

func (p *Pipeline) Produce(ctx context.Context) (*pipeline.Artifact, error) {
	logger := p.logger()

	edition, err := p.probe(ctx, flowID, probeKeyPrefix())
	if err != nil {
		return nil, fmt.Errorf("edition probe: %w", err)
	}
	logger.Info("using edition", "edition", edition)

	ds, err := p.env.SDMX.FetchDataset(ctx, sdmx.DataQuery{
		Flow:        flowID,
		Key:         dataKeyPrefix() + edition,
		StartPeriod: startPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	sheets := extract(ds)
	if len(sheets) == 0 {
		return nil, errors.New("no data extracted after processing")
	}

	totalRows := 0
	for _, sh := range sheets {
		totalRows += len(sh.periods)
	}
	logger.Info("series extracted", "sheets", len(sheets), "rows", totalRows)

	content, err := p.buildWorkbook(edition, sheets)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	return &pipeline.Artifact{
		Filename:     filename,
		Folder:       p.env.Folder(folderKey),
		Content:      content,
		ContentType:  workbook.ContentType,
		Edition:      edition,
		Observations: totalRows,
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.env.Logger != nil {
		return p.env.Logger
	}
	return slog.Default()
}

// column is one "Aggregato - Valutazione" series on a data sheet.
type column struct {
	name   string
	values map[quarterly.Period]float64
}

type sheetData struct {
	name    string
	columns []column
	periods []quarterly.Period
}

// extract splits the dataset by adjustment and pivots each part into
// period rows by aggregate-valuation columns. Adjustments with no data
// yield no sheet; duplicate observations keep the first value seen.
func extract(ds *sdmx.Dataset) []sheetData {
	var sheets []sheetData

	for _, adj := range adjustments {
		var columns []column
		periodSet := make(map[quarterly.Period]bool)

		for _, agg := range aggregates {
			for _, val := range valuations {
				matches := ds.Filter(map[string]string{
					"DATA_TYPE_AGGR": agg.id,
					"VALUATION":      val.id,
					"ADJUSTMENT":     adj.id,
				})

				values := make(map[quarterly.Period]float64)
				for _, s := range matches {
					for _, obs := range s.Obs {
						if obs.Missing {
							continue
						}
						period, ok := quarterly.Parse(obs.Period)
						if !ok {
							continue
						}
						if _, seen := values[period]; seen {
							continue
						}
						values[period] = obs.Value
					}
				}
				if len(values) == 0 {
					continue
				}

				columns = append(columns, column{name: agg.name + " - " + val.name, values: values})
				for period := range values {
					periodSet[period] = true
				}
			}
		}
		if len(columns) == 0 {
			continue
		}

		sheets = append(sheets, sheetData{
			name:    adj.sheet,
			columns: columns,
			periods: quarterly.Sorted(periodSet),
		})
	}
	return sheets
}

func (p *Pipeline) buildWorkbook(edition string, sheets []sheetData) ([]byte, error) {
	first := sheets[0].periods[0]
	last := sheets[0].periods[len(sheets[0].periods)-1]
	for _, sh := range sheets[1:] {
		if sh.periods[0].Less(first) {
			first = sh.periods[0]
		}
		if last.Less(sh.periods[len(sh.periods)-1]) {
			last = sh.periods[len(sh.periods)-1]
		}
	}

	meta := []workbook.KV{
		{Key: "edition", Value: edition},
		{Key: "edition_type", Value: "Edition"},
		{Key: "download_date", Value: p.now().Format("2006-01-02 15:04:05")},
		{Key: "dataflow", Value: flowID},
		{Key: "description", Value: description},
		{Key: "coicop_filter", Value: coicopTotal + " (totale)"},
		{Key: "period_min", Value: first.String()},
		{Key: "period_max", Value: last.String()},
		{Key: "n_variables", Value: len(aggregates) * len(valuations)},
	}

	wb := workbook.NewBuilder()
	if err := wb.AddKVSheet(metaSheet, "chiave", "valore", meta, 0, 0); err != nil {
		return nil, err
	}

	// Variable description block, two blank rows below the metadata.
	varBlock := workbook.Table{
		Header: []string{"variable_name", "aggregate_code", "aggregate_name", "valuation_code", "valuation_name"},
	}
	for _, agg := range aggregates {
		for _, val := range valuations {
			varBlock.Rows = append(varBlock.Rows, []any{
				agg.name + " - " + val.name, agg.id, agg.name, val.id, val.name,
			})
		}
	}
	if err := wb.AppendTable(metaSheet, len(meta)+4, varBlock); err != nil {
		return nil, err
	}
	if err := wb.SetColWidths(metaSheet, []float64{20, 60, 40, 40, 40}); err != nil {
		return nil, err
	}

	for _, sh := range sheets {
		tbl := workbook.Table{WrapHeader: true}
		tbl.Header = append(tbl.Header, quarterly.TemporalHeader...)
		for range quarterly.TemporalHeader {
			tbl.Widths = append(tbl.Widths, quarterly.TemporalColWidth)
		}
		for _, col := range sh.columns {
			tbl.Header = append(tbl.Header, col.name)
			tbl.Widths = append(tbl.Widths, valueColWidth)
		}
		for _, period := range sh.periods {
			row := period.TemporalCells()
			for _, col := range sh.columns {
				if v, ok := col.values[period]; ok {
					row = append(row, v)
				} else {
					row = append(row, nil)
				}
			}
			tbl.Rows = append(tbl.Rows, row)
		}
		if err := wb.AddTableSheet(sh.name, tbl); err != nil {
			return nil, err
		}
	}

	return wb.Bytes()
}

var _ pipeline.Pipeline = (*Pipeline)(nil)
