// Package sdmx is a small client for the ISTAT SDMX 2.1 REST API. It
// covers the two endpoints the pipelines need: generic data queries and
// dataflow structure lookups for codelist names.
package sdmx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production ISTAT SDMX webservice root.
const DefaultBaseURL = "https://esploradati.istat.it/SDMXWS/rest"

// acceptGenericData pins the response format to SDMX 2.1 generic data.
const acceptGenericData = "application/vnd.sdmx.genericdata+xml;version=2.1"

// ISTAT publishes every dataflow under the same agency and version.
const (
	agencyID    = "IT1"
	flowVersion = "1.0"
)

// dataTimeout bounds full data downloads. Wide NIC queries can run into
// the hundreds of megabytes and take several minutes server side.
const dataTimeout = 10 * time.Minute

// ErrNoData is returned when a data query succeeds but the response
// carries no series.
var ErrNoData = errors.New("sdmx: no series in response")

// Client talks to one SDMX service endpoint. It is safe for concurrent
// use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a Client for the service at baseURL. Pass DefaultBaseURL
// for the production ISTAT endpoint.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: dataTimeout},
		logger:     logger,
	}
}

// DataQuery identifies one generic data request.
type DataQuery struct {
	// Flow is the dataflow id, e.g. "167_744_DF_DCSP_NIC1B2015_2".
	Flow string

	// Key is the dotted dimension filter. Empty positions select every
	// value of that dimension, so "M..39.4." matches all territories
	// and products at monthly frequency.
	Key string

	// StartPeriod and EndPeriod bound the observation window. Either
	// may be left empty.
	StartPeriod string
	EndPeriod   string
}

// DataURL returns the full request URL a query resolves to. Pipelines
// record it in the workbook metadata sheet so a published file names its
// own source.
func (c *Client) DataURL(q DataQuery) string {
	params := url.Values{}
	params.Set("detail", "full")
	params.Set("dimensionAtObservation", "TIME_PERIOD")
	if q.StartPeriod != "" {
		params.Set("startPeriod", q.StartPeriod)
	}
	if q.EndPeriod != "" {
		params.Set("endPeriod", q.EndPeriod)
	}

	return fmt.Sprintf("%s/data/%s,%s,%s/%s/ALL/?%s",
		c.baseURL, agencyID, q.Flow, flowVersion, q.Key, params.Encode())
}

// StructureURL returns the dataflow structure URL for a flow, the same
// one FetchCodelists queries.
func (c *Client) StructureURL(flow string) string {
	return fmt.Sprintf("%s/dataflow/%s/%s/%s/?detail=Full&references=Descendants",
		c.baseURL, agencyID, flow, flowVersion)
}

// FetchDataset runs a generic data query and parses the response into a
// Dataset. A well formed response with zero series returns ErrNoData.
func (c *Client) FetchDataset(ctx context.Context, q DataQuery) (*Dataset, error) {
	body, err := c.get(ctx, c.DataURL(q), acceptGenericData)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sdmx data downloaded", "flow", q.Flow, "bytes", len(body))

	ds, err := parseGenericData(body)
	if err != nil {
		return nil, err
	}
	if len(ds.Series) == 0 {
		return nil, fmt.Errorf("%w (flow %s, key %s)", ErrNoData, q.Flow, q.Key)
	}

	c.logger.Debug("sdmx data parsed",
		"flow", q.Flow, "series", len(ds.Series), "observations", ds.Observations())
	return ds, nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sdmx: unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return io.ReadAll(resp.Body)
}
