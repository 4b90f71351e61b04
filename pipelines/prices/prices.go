// Package prices registers the consumer price index pipelines built on
// the NIC monthly flows (whole-nation index, base 2015): the full five
// digit ECOICOP classification and the product type breakdown by
// territory.
package prices

import (
	"github.com/macrodata/statpipe/pipelines/matrix"
	"github.com/macrodata/statpipe/pkg/dataset"
)

var ecoicop = dataset.Definition{
	Name:        "nic_ecoicop",
	DisplayName: "NIC consumer prices by ECOICOP classification (5 digits)",
	Filename:    "NIC_ECOICOP_LATEST.xlsx",
	FolderKey:   "monthly",
	Dataflow: dataset.Dataflow{
		ID: "167_744_DF_DCSP_NIC1B2015_4",
		// Monthly, whole country, all products, index numbers base 2015.
		Key: "M.IT..39.4",
	},
	Dimensions: []dataset.Dimension{{
		ID:         "E_COICOP",
		Column:     "CODE",
		NameColumn: "NAME",
		Codelist:   "CL_COICOP_2015",
		CountKey:   "n_products",
		Width:      12,
		NameWidth:  50,
	}},
	Hierarchy: &dataset.Hierarchy{Column: "LEVEL"},
	Metadata: dataset.Metadata{
		SourcePath:    "PRICES / CONSUMER PRICES FOR THE WHOLE NATION / PREVIOUS BASES (NIC) / NIC MONTHLY FROM 2016 (BASE 2015) / ECOICOP CLASSIFICATION (5 DIGITS)",
		SourcePathIT:  "PREZZI / PREZZI AL CONSUMO PER L'INTERA COLLETTIVITA / BASI PRECEDENTI (NIC) / NIC MENSILI DAL 2016 (BASE 2015) / CLASSIFICAZIONE ECOICOP (5 CIFRE)",
		Measure:       "Index numbers",
		MeasureCode:   "4",
		Frequency:     "Monthly",
		FrequencyCode: "M",
		BaseYear:      "2015",
		Territory:     "IT (Italy)",
	},
}

var productTypes = dataset.Definition{
	Name:        "nic_tipologia",
	DisplayName: "NIC consumer prices by product type and territory",
	Filename:    "NIC_Tipologia_prodotto_LATEST.xlsx",
	FolderKey:   "monthly",
	Dataflow: dataset.Dataflow{
		ID: "167_744_DF_DCSP_NIC1B2015_2",
		// Monthly, every territory and product type, index numbers base
		// 2015.
		Key: "M..39.4.",
	},
	Dimensions: []dataset.Dimension{
		{
			ID:         "REF_AREA",
			Column:     "TERRITORY",
			NameColumn: "TERRITORY_NAME",
			Codelist:   "CL_ITTER107",
			CountKey:   "n_territories",
			Width:      12,
			NameWidth:  40,
		},
		{
			ID:         "E_COICOP_REV_ISTAT",
			Column:     "PRODUCT_TYPE",
			NameColumn: "PRODUCT_NAME",
			Codelist:   "CL_COICOP_2015",
			CountKey:   "n_product_types",
			Width:      15,
			NameWidth:  40,
		},
	},
	Metadata: dataset.Metadata{
		SourcePath:    "PRICES / CONSUMER PRICES FOR THE WHOLE NATION / PREVIOUS BASES (NIC) / NIC MONTHLY FROM 2016 (BASE 2015) / PRODUCT TYPES",
		SourcePathIT:  "PREZZI / PREZZI AL CONSUMO PER L'INTERA COLLETTIVITA / BASI PRECEDENTI (NIC) / NIC MENSILI DAL 2016 (BASE 2015) / TIPOLOGIE DI PRODOTTO",
		Measure:       "Index numbers",
		MeasureCode:   "4",
		Frequency:     "Monthly",
		FrequencyCode: "M",
		BaseYear:      "2015",
	},
}

func init() {
	matrix.Register(ecoicop)
	matrix.Register(productTypes)
}
