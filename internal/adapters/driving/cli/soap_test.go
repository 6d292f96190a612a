package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func TestSOAPCmd_GlobalContext(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.soap.soap = domain.SOAPContext{
		O: []domain.Fact{{Label: "FiO2", Value: "0.8", EvidenceIDs: []string{"CN_7_0"}}},
		A: []domain.Fact{{Label: "diagnosis", Value: "ARDS"}},
	}
	ts.soap.missing = map[domain.Section][]string{domain.SectionPlan: {"ventilator plan", "antibiotics"}}

	out, err := executeCommand("soap", "--row", "7")

	require.NoError(t, err)
	require.NotNil(t, ts.soap.lastRowID)
	assert.Equal(t, 7, *ts.soap.lastRowID)
	assert.Contains(t, out, "SOAP context (row 7, 2 facts)")
	assert.Contains(t, out, "  - FiO2: 0.8 [CN_7_0]")
	assert.Contains(t, out, "  - diagnosis: ARDS [uncited]")
	assert.Contains(t, out, "  missing: ventilator plan, antibiotics")
	assert.Contains(t, out, "(none)")
}

func TestSOAPCmd_WholeCorpus(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("soap")

	require.NoError(t, err)
	assert.Nil(t, ts.soap.lastRowID)
	assert.Contains(t, out, "SOAP context (corpus, 0 facts)")
}

func TestSOAPCmd_SectionPack(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.soap.pack = domain.EvidencePack{Results: []domain.RetrievalResult{
		{EvidenceID: "CN_7_0", Score: 1.35, Text: "FiO2 0.8"},
	}}

	out, err := executeCommand("soap", "--row", "7", "-s", "o", "-q", "ventilator settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Objective pack")
	assert.Contains(t, out, "Query: ventilator settings")
	assert.Contains(t, out, "[1] CN_7_0 (1.350)")
}

func TestSOAPCmd_SectionPackJSON(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.soap.pack = domain.EvidencePack{Template: "Information needed:\n- imaging"}

	out, err := executeCommand("soap", "--section", "P", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"section": "P"`)
	assert.Contains(t, out, `"template": "Information needed:\n- imaging"`)
}

func TestSOAPCmd_InvalidSection(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("soap", "--section", "X")

	assert.Error(t, err)
}

func TestSOAPCmd_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	soapService = nil

	_, err := executeCommand("soap")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOAP service not configured")
}
