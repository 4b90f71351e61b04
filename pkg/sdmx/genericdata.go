package sdmx

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Wire shapes for SDMX 2.1 generic data messages. Element names are
// left unqualified so the decoder matches on local name whichever
// namespace prefixes the service emits.

type genericDataMessage struct {
	DataSets []genericDataSet `xml:"DataSet"`
}

type genericDataSet struct {
	Series []genericSeries `xml:"Series"`
}

type genericSeries struct {
	Key []genericKeyValue `xml:"SeriesKey>Value"`
	Obs []genericObs      `xml:"Obs"`
}

type genericKeyValue struct {
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type genericObs struct {
	Dimension genericAttrValue  `xml:"ObsDimension"`
	Value     *genericAttrValue `xml:"ObsValue"`
}

type genericAttrValue struct {
	Value string `xml:"value,attr"`
}

// Observation is a single period/value pair within a series. Missing is
// set when the source omits the value or publishes something that does
// not parse as a number.
type Observation struct {
	Period  string
	Value   float64
	Missing bool
}

// Series is one time series keyed by its dimension values.
type Series struct {
	Dimensions map[string]string
	Obs        []Observation
}

// Dimension returns the value of the named dimension, or "" when the
// series key does not carry it.
func (s Series) Dimension(id string) string {
	return s.Dimensions[id]
}

// Dataset holds every series of a generic data response.
type Dataset struct {
	Series []Series
}

// Observations counts all observations across the dataset, missing ones
// included.
func (d *Dataset) Observations() int {
	n := 0
	for _, s := range d.Series {
		n += len(s.Obs)
	}
	return n
}

// Filter returns the series whose key matches every given id/value pair.
func (d *Dataset) Filter(dims map[string]string) []Series {
	var out []Series
	for _, s := range d.Series {
		match := true
		for id, want := range dims {
			if s.Dimensions[id] != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, s)
		}
	}
	return out
}

func parseGenericData(body []byte) (*Dataset, error) {
	var msg genericDataMessage
	if err := xml.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("parse generic data: %w", err)
	}

	ds := &Dataset{}
	for _, raw := range msg.DataSets {
		for _, rs := range raw.Series {
			s := Series{Dimensions: make(map[string]string, len(rs.Key))}
			for _, kv := range rs.Key {
				if kv.ID != "" && kv.Value != "" {
					s.Dimensions[kv.ID] = kv.Value
				}
			}
			for _, ro := range rs.Obs {
				obs := Observation{Period: ro.Dimension.Value, Missing: true}
				if ro.Value != nil {
					if v, err := strconv.ParseFloat(ro.Value.Value, 64); err == nil {
						obs.Value = v
						obs.Missing = false
					}
				}
				s.Obs = append(s.Obs, obs)
			}
			ds.Series = append(ds.Series, s)
		}
	}
	return ds, nil
}
