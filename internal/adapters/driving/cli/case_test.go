package cli

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func TestCaseCmd_RendersReport(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("case", "--row", "7", "-q", "respiratory failure")

	require.NoError(t, err)
	require.NotNil(t, ts.cases.lastReq.RowID)
	assert.Equal(t, 7, *ts.cases.lastReq.RowID)
	assert.Equal(t, "respiratory failure", ts.cases.lastReq.Query)

	assert.Contains(t, out, "Case row 7 (run run-1)")
	assert.Contains(t, out, "  - Primary problems: ARDS [CN_7_0]")
	assert.Contains(t, out, "  1. ARDS (medium)")
	assert.Contains(t, out, "     + FiO2: 0.8 [CN_7_0]")
	assert.Contains(t, out, "     ? chest imaging")
	assert.Contains(t, out, "  - [high] Latest PaO2/FiO2 ratio? [CN_7_0]")
	assert.Contains(t, out, "Composition fell back to rule-based output")
	assert.Contains(t, out, "  - Removed weak support")
	assert.Contains(t, out, "Quality gate: PASSED (score 74)")
	assert.Contains(t, out, "  warning: Differential has only 1 items (min: 3)")
}

func TestCaseCmd_WholeCorpus(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("case")

	require.NoError(t, err)
	assert.Nil(t, ts.cases.lastReq.RowID)
	assert.Contains(t, out, "Case corpus (run run-1)")
}

func TestCaseCmd_FailedGate(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.cases.result.Quality = domain.QualityGateResult{Score: 40, Errors: []string{"No primary problems identified"}}
	ts.cases.result.Report.Differential = nil

	out, err := executeCommand("case", "--row", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "Quality gate: FAILED (score 40)")
	assert.Contains(t, out, "  error: No primary problems identified")
	assert.Contains(t, out, "(none)")
}

func TestCaseCmd_JSON(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("case", "--row", "7", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-1"`)
	assert.Contains(t, out, `"row_id": 7`)
	assert.Contains(t, out, `"diagnosis": "ARDS"`)
}

func TestCaseCmd_Draft(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.cases.draft = domain.SOAPContext{
		RowID: intPtr(7),
		S:     []domain.Fact{{Label: "history", Value: "Kasai procedure", EvidenceIDs: []string{"CN_7_1"}}},
	}

	out, err := executeCommand("case", "--row", "7", "--draft")

	require.NoError(t, err)
	assert.Contains(t, out, "SOAP context (row 7, 1 facts)")
	assert.Contains(t, out, "  - history: Kasai procedure [CN_7_1]")
	assert.NotContains(t, out, "Quality gate")
}

func TestCaseCmd_IntegrityViolations(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.cases.err = fmt.Errorf("validate report: %w", &domain.EvidenceIntegrityError{
		Artifact: "report",
		Violations: []domain.Violation{
			{Path: "differential[0].support[1]", Reason: domain.ReasonUnknownEvidence, EvidenceID: "CN_9_0"},
			{Path: "summary[2]", Reason: domain.ReasonBackgroundEvidence, EvidenceID: "D000001"},
		},
	})

	out, err := executeCommand("case", "--row", "7")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEvidenceIntegrity)
	assert.Contains(t, err.Error(), "case row 7 failed")
	assert.Contains(t, out, "differential[0].support[1]: unknown_evidence CN_9_0")
	assert.Contains(t, out, "summary[2]: background_evidence D000001")
}

func TestCaseCmd_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	caseService = nil

	_, err := executeCommand("case")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "case service not configured")
}
