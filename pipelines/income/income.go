// Package income publishes the quarterly disposable income accounts of
// consumer households. It pulls a fixed set of primary and secondary
// distribution aggregates for sector S14A from the institutional sector
// accounts flow and lays them out as one wide quarter-by-aggregate table.
package income

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/macrodata/statpipe/pipelines/quarterly"
	"github.com/macrodata/statpipe/pkg/pipeline"
	"github.com/macrodata/statpipe/pkg/sdmx"
	"github.com/macrodata/statpipe/pkg/workbook"
)

const (
	name      = "income"
	filename  = "ISTAT_Reddito_disponibile_famiglie_LATEST.xlsx"
	folderKey = "quarterly"

	flowID            = "162_1064_DF_DCCN_ISTITUZ_QNA1_1"
	sector            = "S14A"
	sectorDescription = "Famiglie consumatrici"

	// The widest possible window; the flow itself bounds what comes back.
	startPeriod = "1775-07-01"
	endPeriod   = "2030-07-01"

	metaSheet = "Metadati"
	dataSheet = "Dati"

	metaColWidth  = 30
	valueColWidth = 25
)

// Flow directions of the sector accounts. Use-side aggregates are
// negated on extraction so resources and uses sum toward the balances.
const (
	flowResource = "RISORSA"
	flowUse      = "IMPIEGO"
	flowBalance  = "SALDO"
)

type aggregate struct {
	code string
	flow string
	name string
}

func (a aggregate) rawLabel() string { return a.flow + " - " + a.name }

// aggregates lists what is downloaded, in the column order of the data
// sheet: the primary income account, the secondary distribution account,
// then the use of income account.
var aggregates = []aggregate{
	{"B2A3G_B_W0_X1", flowResource, "Risultato lordo di gestione e reddito misto lordo"},
	{"D1_C_W0", flowResource, "Redditi da lavoro dipendente"},
	{"D4T_C_W0", flowResource, "Redditi da capitale (comprensivi quota famiglie produttrici)"},
	{"D4T_D_W0", flowUse, "Redditi da capitale (comprensivi quota famiglie produttrici)"},
	{"B5G_B_W0", flowBalance, "Reddito nazionale lordo/saldo dei redditi primari lordo"},
	{"D61_C_W0", flowResource, "Contributi sociali netti"},
	{"D62_C_W0", flowResource, "Prestazioni sociali diverse dai trasferimenti sociali in natura"},
	{"D7_C_W0", flowResource, "Altri trasferimenti correnti"},
	{"D5_D_W0", flowUse, "Imposte correnti sul reddito, sul patrimonio, ecc."},
	{"D61_D_W0", flowUse, "Contributi sociali netti"},
	{"D62_D_W0", flowUse, "Prestazioni sociali diverse dai trasferimenti sociali in natura"},
	{"D7_D_W0", flowUse, "Altri trasferimenti correnti"},
	{"B6G_B_W0", flowBalance, "Reddito disponibile lordo"},
	{"D8_C_W0", flowResource, "Rettifica per variazione dei diritti pensionistici"},
}

// keyPrefix is the series key up to the edition dimension.
func keyPrefix() string {
	codes := make([]string, len(aggregates))
	for i, a := range aggregates {
		codes[i] = a.code
	}
	return "Q.IT." + strings.Join(codes, "+") + "." + sector + "...V.S.N."
}

// Pipeline downloads and lays out the disposable income accounts.
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
	return "Quarterly disposable income of consumer households (sector S14A)"
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
	prefix := keyPrefix()

	edition, err := p.probe(ctx, flowID, prefix)
	if err != nil {
		return nil, fmt.Errorf("edition probe: %w", err)
	}
	logger.Info("using edition", "edition", edition)

	ds, err := p.env.SDMX.FetchDataset(ctx, sdmx.DataQuery{
		Flow:        flowID,
		Key:         prefix + edition,
		StartPeriod: startPeriod,
		EndPeriod:   endPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	values, kept := extract(ds)
	if len(kept) == 0 {
		return nil, errors.New("no series extracted for selected aggregates")
	}

	periodSet := make(map[quarterly.Period]bool)
	for _, byPeriod := range values {
		for period := range byPeriod {
			periodSet[period] = true
		}
	}
	periods := quarterly.Sorted(periodSet)
	logger.Info("series extracted", "aggregates", len(kept), "quarters", len(periods))

	content, err := p.buildWorkbook(edition, kept, values, periods)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	first, last := periods[0], periods[len(periods)-1]
	return &pipeline.Artifact{
		Filename:     filename,
		Folder:       p.env.Folder(folderKey),
		Content:      content,
		ContentType:  workbook.ContentType,
		Edition:      edition,
		Variables:    len(kept),
		Observations: len(periods),
		PeriodRange:  fmt.Sprintf("%s → %s", first, last),
		Sector:       sector,
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.env.Logger != nil {
		return p.env.Logger
	}
	return slog.Default()
}

// extract pulls one time series per aggregate, negating use-side values.
// Aggregates the edition does not publish are dropped.
func extract(ds *sdmx.Dataset) (map[string]map[quarterly.Period]float64, []aggregate) {
	values := make(map[string]map[quarterly.Period]float64)
	var kept []aggregate

	for _, agg := range aggregates {
		matches := ds.Filter(map[string]string{
			"DATA_TYPE_AGGR":       agg.code,
			"INSTITUTIONAL_SECTOR": sector,
		})

		byPeriod := make(map[quarterly.Period]float64)
		for _, s := range matches {
			for _, obs := range s.Obs {
				if obs.Missing {
					continue
				}
				period, ok := quarterly.Parse(obs.Period)
				if !ok {
					continue
				}
				v := obs.Value
				if agg.flow == flowUse {
					v = -v
				}
				byPeriod[period] = v
			}
		}
		if len(byPeriod) == 0 {
			continue
		}
		values[agg.code] = byPeriod
		kept = append(kept, agg)
	}
	return values, kept
}

func (p *Pipeline) buildWorkbook(edition string, kept []aggregate, values map[string]map[quarterly.Period]float64, periods []quarterly.Period) ([]byte, error) {
	first, last := periods[0], periods[len(periods)-1]
	meta := []workbook.KV{
		{Key: "edition", Value: edition},
		{Key: "edition_type", Value: "Edition"},
		{Key: "download_date", Value: p.now().Format("2006-01-02 15:04:05")},
		{Key: "sector", Value: sector},
		{Key: "sector_description", Value: sectorDescription},
		{Key: "dataflow", Value: flowID},
		{Key: "period_min", Value: first.String()},
		{Key: "period_max", Value: last.String()},
		{Key: "n_variables", Value: len(kept)},
	}

	wb := workbook.NewBuilder()
	if err := wb.AddKVSheet(metaSheet, "chiave", "valore", meta, 0, 0); err != nil {
		return nil, err
	}

	// The aggregate description block sits below the metadata, one blank
	// row in between, sorted by code.
	byCode := make([]aggregate, len(kept))
	copy(byCode, kept)
	sort.Slice(byCode, func(i, j int) bool { return byCode[i].code < byCode[j].code })

	varBlock := workbook.Table{Header: []string{"code", "name", "raw_label", "flow_direction"}}
	for _, agg := range byCode {
		varBlock.Rows = append(varBlock.Rows, []any{agg.code, agg.name, agg.rawLabel(), agg.flow})
	}
	if err := wb.AppendTable(metaSheet, len(meta)+3, varBlock); err != nil {
		return nil, err
	}
	if err := wb.SetColWidths(metaSheet, []float64{metaColWidth, metaColWidth, metaColWidth, metaColWidth}); err != nil {
		return nil, err
	}

	data := workbook.Table{WrapHeader: true}
	data.Header = append(data.Header, quarterly.TemporalHeader...)
	for range quarterly.TemporalHeader {
		data.Widths = append(data.Widths, quarterly.TemporalColWidth)
	}
	for _, agg := range kept {
		data.Header = append(data.Header, agg.name)
		data.Widths = append(data.Widths, valueColWidth)
	}
	for _, period := range periods {
		row := period.TemporalCells()
		for _, agg := range kept {
			if v, ok := values[agg.code][period]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		data.Rows = append(data.Rows, row)
	}
	if err := wb.AddTableSheet(dataSheet, data); err != nil {
		return nil, err
	}

	return wb.Bytes()
}

var _ pipeline.Pipeline = (*Pipeline)(nil)
