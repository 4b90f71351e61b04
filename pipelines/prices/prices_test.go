package prices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrodata/statpipe/pkg/pipeline"
)

func TestPipelinesRegistered(t *testing.T) {
	for _, name := range []string{"nic_ecoicop", "nic_tipologia"} {
		p := pipeline.Lookup(name)
		require.NotNil(t, p, "pipeline %s", name)
		assert.Equal(t, name, p.Name())
		assert.NotEmpty(t, p.Description())
	}
}

func TestEcoicopDefinition(t *testing.T) {
	assert.Equal(t, "NIC_ECOICOP_LATEST.xlsx", ecoicop.Filename)
	assert.Equal(t, "167_744_DF_DCSP_NIC1B2015_4", ecoicop.Dataflow.ID)
	assert.Equal(t, "M.IT..39.4", ecoicop.Dataflow.Key)
	assert.Equal(t, "monthly", ecoicop.FolderKey)

	require.Len(t, ecoicop.Dimensions, 1)
	assert.Equal(t, "E_COICOP", ecoicop.Dimensions[0].ID)
	assert.Equal(t, "CL_COICOP_2015", ecoicop.Dimensions[0].Codelist)
	require.NotNil(t, ecoicop.Hierarchy)
	assert.Equal(t, "LEVEL", ecoicop.Hierarchy.Column)
}

func TestProductTypesDefinition(t *testing.T) {
	assert.Equal(t, "NIC_Tipologia_prodotto_LATEST.xlsx", productTypes.Filename)
	assert.Equal(t, "167_744_DF_DCSP_NIC1B2015_2", productTypes.Dataflow.ID)
	assert.Equal(t, "M..39.4.", productTypes.Dataflow.Key)

	require.Len(t, productTypes.Dimensions, 2)
	assert.Equal(t, "REF_AREA", productTypes.Dimensions[0].ID)
	assert.Equal(t, "E_COICOP_REV_ISTAT", productTypes.Dimensions[1].ID)
	assert.Nil(t, productTypes.Hierarchy)
}

func TestDefinitionsValidate(t *testing.T) {
	e := ecoicop
	e.Normalize()
	require.NoError(t, e.Validate())
	assert.Equal(t, "1995-01-01", e.Dataflow.StartPeriod)
	assert.Equal(t, []string{"00", "00ST", "OR0"}, e.Hierarchy.Roots)

	p := productTypes
	p.Normalize()
	require.NoError(t, p.Validate())
}
