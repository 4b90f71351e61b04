package sdmx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genericDataXML = `<?xml version="1.0" encoding="UTF-8"?>
<message:GenericData xmlns:message="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/message"
                     xmlns:generic="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/data/generic">
  <message:Header>
    <message:ID>IT1_TEST</message:ID>
    <message:Test>false</message:Test>
    <message:Prepared>2025-12-01T10:00:00</message:Prepared>
    <message:Sender id="IT1"/>
  </message:Header>
  <message:DataSet>
    <generic:Series>
      <generic:SeriesKey>
        <generic:Value id="FREQ" value="Q"/>
        <generic:Value id="REF_AREA" value="IT"/>
        <generic:Value id="DATA_TYPE_AGGR" value="B1G"/>
        <generic:Value id="INSTITUTIONAL_SECTOR" value="S14"/>
      </generic:SeriesKey>
      <generic:Obs>
        <generic:ObsDimension value="2024-Q1"/>
        <generic:ObsValue value="123456.7"/>
      </generic:Obs>
      <generic:Obs>
        <generic:ObsDimension value="2024-Q2"/>
        <generic:ObsValue value="130000.2"/>
      </generic:Obs>
      <generic:Obs>
        <generic:ObsDimension value="2024-Q3"/>
      </generic:Obs>
    </generic:Series>
  </message:DataSet>
</message:GenericData>`

const emptyDataXML = `<?xml version="1.0" encoding="UTF-8"?>
<message:GenericData xmlns:message="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/message"
                     xmlns:generic="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/data/generic">
  <message:Header>
    <message:ID>IT1_TEST</message:ID>
    <message:Sender id="IT1"/>
  </message:Header>
  <message:DataSet/>
</message:GenericData>`

const structureXML = `<?xml version="1.0" encoding="UTF-8"?>
<message:Structure xmlns:message="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/message"
                   xmlns:structure="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/structure"
                   xmlns:common="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/common">
  <message:Header>
    <message:ID>IT1_STRUCT</message:ID>
    <message:Sender id="IT1"/>
  </message:Header>
  <message:Structures>
    <structure:Codelists>
      <structure:Codelist id="CL_ITTER107" agencyID="IT1" version="1.0">
        <structure:Code id="IT">
          <common:Name xml:lang="it">Italia</common:Name>
          <common:Name xml:lang="en">Italy</common:Name>
        </structure:Code>
        <structure:Code id="ITC">
          <common:Name xml:lang="en">North-west</common:Name>
          <common:Name xml:lang="it">Nord-ovest</common:Name>
        </structure:Code>
        <structure:Code id="ITF1">
          <common:Name xml:lang="it">Abruzzo</common:Name>
        </structure:Code>
        <structure:Code id="ITX9"/>
      </structure:Codelist>
      <structure:Codelist id="CL_COICOP_2015" agencyID="IT1" version="1.0">
        <structure:Code id="00">
          <common:Name xml:lang="en">All items</common:Name>
        </structure:Code>
      </structure:Codelist>
    </structure:Codelists>
  </message:Structures>
</message:Structure>`

func TestFetchDatasetParsesSeries(t *testing.T) {
	var gotPath, gotAccept string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotQuery = r.URL.Query()
		fmt.Fprint(w, genericDataXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	ds, err := c.FetchDataset(context.Background(), DataQuery{
		Flow:        "93_404_DF_DCCN_SQCQ_2",
		Key:         "Q.IT.B1G.S14...V.S.N.2025M10",
		StartPeriod: "1995-01-01",
		EndPeriod:   "2030-12-31",
	})
	require.NoError(t, err)

	assert.Equal(t, "/data/IT1,93_404_DF_DCCN_SQCQ_2,1.0/Q.IT.B1G.S14...V.S.N.2025M10/ALL/", gotPath)
	assert.Equal(t, "application/vnd.sdmx.genericdata+xml;version=2.1", gotAccept)
	assert.Equal(t, []string{"full"}, gotQuery["detail"])
	assert.Equal(t, []string{"TIME_PERIOD"}, gotQuery["dimensionAtObservation"])
	assert.Equal(t, []string{"1995-01-01"}, gotQuery["startPeriod"])
	assert.Equal(t, []string{"2030-12-31"}, gotQuery["endPeriod"])

	require.Len(t, ds.Series, 1)
	s := ds.Series[0]
	assert.Equal(t, "IT", s.Dimension("REF_AREA"))
	assert.Equal(t, "B1G", s.Dimension("DATA_TYPE_AGGR"))
	assert.Equal(t, "S14", s.Dimension("INSTITUTIONAL_SECTOR"))

	require.Len(t, s.Obs, 3)
	assert.Equal(t, "2024-Q1", s.Obs[0].Period)
	assert.InDelta(t, 123456.7, s.Obs[0].Value, 1e-9)
	assert.False(t, s.Obs[0].Missing)
	assert.False(t, s.Obs[1].Missing)
	// The third observation has no ObsValue element.
	assert.Equal(t, "2024-Q3", s.Obs[2].Period)
	assert.True(t, s.Obs[2].Missing)

	assert.Equal(t, 3, ds.Observations())
}

func TestFetchDatasetNoSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyDataXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.FetchDataset(context.Background(), DataQuery{Flow: "FLOW", Key: "M...."})
	require.ErrorIs(t, err, ErrNoData)
}

func TestFetchDatasetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.FetchDataset(context.Background(), DataQuery{Flow: "FLOW", Key: "M...."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestDataURL(t *testing.T) {
	c := New("https://example.org/rest", nil)
	got := c.DataURL(DataQuery{
		Flow:        "167_744_DF_DCSP_NIC1B2015_4",
		Key:         "M.IT..39.4",
		StartPeriod: "1995-01-01",
		EndPeriod:   "2030-12-31",
	})
	assert.Equal(t,
		"https://example.org/rest/data/IT1,167_744_DF_DCSP_NIC1B2015_4,1.0/M.IT..39.4/ALL/"+
			"?detail=full&dimensionAtObservation=TIME_PERIOD&endPeriod=2030-12-31&startPeriod=1995-01-01",
		got)
}

func TestStructureURL(t *testing.T) {
	c := New("https://example.org/rest/", nil)
	assert.Equal(t,
		"https://example.org/rest/dataflow/IT1/167_744_DF_DCSP_NIC1B2015_4/1.0/?detail=Full&references=Descendants",
		c.StructureURL("167_744_DF_DCSP_NIC1B2015_4"))
}

func TestParseGenericDataWithoutNamespaces(t *testing.T) {
	// Some mirrors serve the same message without namespace prefixes.
	// Matching on local names keeps both shapes parseable.
	raw := `<GenericData>
  <Header><ID>X</ID></Header>
  <DataSet>
    <Series>
      <SeriesKey><Value id="REF_AREA" value="ITC"/></SeriesKey>
      <Obs><ObsDimension value="2024-01"/><ObsValue value="108.1"/></Obs>
      <Obs><ObsDimension value="2024-02"/><ObsValue value="not-a-number"/></Obs>
    </Series>
  </DataSet>
</GenericData>`

	ds, err := parseGenericData([]byte(raw))
	require.NoError(t, err)
	require.Len(t, ds.Series, 1)
	assert.Equal(t, "ITC", ds.Series[0].Dimension("REF_AREA"))
	require.Len(t, ds.Series[0].Obs, 2)
	assert.False(t, ds.Series[0].Obs[0].Missing)
	assert.True(t, ds.Series[0].Obs[1].Missing)
}

func TestDatasetFilter(t *testing.T) {
	ds := &Dataset{Series: []Series{
		{Dimensions: map[string]string{"DATA_TYPE_AGGR": "B1G", "INSTITUTIONAL_SECTOR": "S14"}},
		{Dimensions: map[string]string{"DATA_TYPE_AGGR": "B2G", "INSTITUTIONAL_SECTOR": "S14"}},
		{Dimensions: map[string]string{"DATA_TYPE_AGGR": "B1G", "INSTITUTIONAL_SECTOR": "S1"}},
	}}

	got := ds.Filter(map[string]string{"DATA_TYPE_AGGR": "B1G", "INSTITUTIONAL_SECTOR": "S14"})
	require.Len(t, got, 1)
	assert.Equal(t, "B1G", got[0].Dimension("DATA_TYPE_AGGR"))

	assert.Empty(t, ds.Filter(map[string]string{"DATA_TYPE_AGGR": "D1"}))
}

func TestFetchCodelists(t *testing.T) {
	var gotPath, gotRawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRawQuery = r.URL.RawQuery
		fmt.Fprint(w, structureXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	lists, err := c.FetchCodelists(context.Background(), "167_744_DF_DCSP_NIC1B2015_2", "CL_ITTER107")
	require.NoError(t, err)

	assert.Equal(t, "/dataflow/IT1/167_744_DF_DCSP_NIC1B2015_2/1.0/", gotPath)
	assert.Contains(t, gotRawQuery, "references=Descendants")

	require.Contains(t, lists, "CL_ITTER107")
	assert.NotContains(t, lists, "CL_COICOP_2015")

	territories := lists["CL_ITTER107"]
	// English wins even when Italian comes first.
	assert.Equal(t, "Italy", territories["IT"])
	assert.Equal(t, "North-west", territories["ITC"])
	// Italian fills in when no English name is published.
	assert.Equal(t, "Abruzzo", territories["ITF1"])
	// A code with no names keeps its id.
	assert.Equal(t, "ITX9", territories["ITX9"])
}

func TestFetchCodelistsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, structureXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	lists, err := c.FetchCodelists(context.Background(), "167_744_DF_DCSP_NIC1B2015_2")
	require.NoError(t, err)
	assert.Len(t, lists, 2)
	assert.Equal(t, "All items", lists["CL_COICOP_2015"]["00"])
}

func TestFindLatestEditionWalksBack(t *testing.T) {
	attempts := 0
	var hitStart, hitEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if strings.Contains(r.URL.Path, "2025M10") {
			hitStart = r.URL.Query().Get("startPeriod")
			hitEnd = r.URL.Query().Get("endPeriod")
			fmt.Fprint(w, genericDataXML)
			return
		}
		fmt.Fprint(w, emptyDataXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	now := time.Date(2025, 12, 5, 10, 30, 0, 0, time.UTC)
	edition, err := c.findLatestEditionAt(context.Background(), "93_404_DF_DCCN_SQCQ_2", "Q.IT.B1G.S14...V.S.N.", now)
	require.NoError(t, err)

	assert.Equal(t, "2025M10", edition)
	// 2025M12 and 2025M11 come back empty before the hit.
	assert.Equal(t, 3, attempts)
	// The probe window is the calendar year before the probed edition.
	assert.Equal(t, "2024-01-01", hitStart)
	assert.Equal(t, "2024-12-31", hitEnd)
}

func TestFindLatestEditionMonthEndAnchor(t *testing.T) {
	// Walking back from March 31st must probe February, not normalize
	// into March again.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "2025M02") {
			fmt.Fprint(w, genericDataXML)
			return
		}
		fmt.Fprint(w, emptyDataXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	now := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)
	edition, err := c.findLatestEditionAt(context.Background(), "FLOW", "Q.IT.B1G.S14...V.S.N.", now)
	require.NoError(t, err)
	assert.Equal(t, "2025M02", edition)
}

func TestFindLatestEditionExhausted(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, emptyDataXML)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	now := time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)
	_, err := c.findLatestEditionAt(context.Background(), "FLOW", "Q.IT.B1G.S14...V.S.N.", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no published edition")
	assert.Equal(t, maxMonthsBack+1, attempts)
}

func TestFindLatestEditionHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyDataXML)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, nil)
	_, err := c.FindLatestEdition(ctx, "FLOW", "Q.IT.B1G.S14...V.S.N.")
	require.ErrorIs(t, err, context.Canceled)
}
