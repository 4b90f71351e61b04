package sdmx

import (
	"context"
	"encoding/xml"
	"fmt"
)

// Codelist maps code ids to display names.
type Codelist map[string]string

type structureMessage struct {
	Codelists []structureCodelist `xml:"Structures>Codelists>Codelist"`
}

type structureCodelist struct {
	ID    string          `xml:"id,attr"`
	Codes []structureCode `xml:"Code"`
}

type structureCode struct {
	ID    string      `xml:"id,attr"`
	Names []langValue `xml:"Name"`
}

type langValue struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

// displayName prefers the English name, falls back to Italian, and
// keeps the bare code id when neither is published.
func (c structureCode) displayName() string {
	name := c.ID
	for _, n := range c.Names {
		switch n.Lang {
		case "en":
			return n.Text
		case "it":
			if name == c.ID {
				name = n.Text
			}
		}
	}
	return name
}

// FetchCodelists downloads the full structure of a dataflow and returns
// its codelists keyed by codelist id. When ids are given only those
// codelists are returned; otherwise all of them are.
func (c *Client) FetchCodelists(ctx context.Context, flow string, ids ...string) (map[string]Codelist, error) {
	body, err := c.get(ctx, c.StructureURL(flow), "")
	if err != nil {
		return nil, err
	}

	var msg structureMessage
	if err := xml.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("parse structure: %w", err)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	out := make(map[string]Codelist)
	for _, cl := range msg.Codelists {
		if len(wanted) > 0 && !wanted[cl.ID] {
			continue
		}
		list := make(Codelist, len(cl.Codes))
		for _, code := range cl.Codes {
			list[code.ID] = code.displayName()
		}
		out[cl.ID] = list
	}

	c.logger.Debug("sdmx codelists fetched", "flow", flow, "codelists", len(out))
	return out, nil
}
