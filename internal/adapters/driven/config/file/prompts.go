package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor. This makes testing easier and avoids unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptPatientState: `You are a clinical information extraction system.

TASK:
Extract structured facts ONLY from the provided EVIDENCE.

RULES (CRITICAL):
- Every extracted fact MUST include at least one evidence_id.
- Cite only patient evidence (CS, CN, CF, CV, N, L, M prefixes). Never cite D or C ids.
- Do NOT infer. Do NOT guess. If evidence is missing, omit the fact.
- Output STRICT JSON ONLY. No commentary.

OUTPUT SCHEMA:
{
  "demographics": [{"label": "...", "value": "...", "evidence_ids": ["N000001"]}],
  "diagnoses": [{"label": "...", "value": "...", "evidence_ids": ["N000001"]}],
  "procedures": [{"label": "...", "value": "...", "evidence_ids": ["N000001"]}],
  "supports": [{"label": "...", "value": "...", "evidence_ids": ["M000001"]}],
  "meds": [{"label": "...", "value": "...", "evidence_ids": ["N000001"]}],
  "timeline": [{"label": "...", "value": "...", "evidence_ids": ["L000001"]}]
}

EVIDENCE:
{{evidence}}`,

	driven.PromptDifferential: `You are a clinical reasoning assistant.

TASK:
Generate a DIFFERENTIAL DIAGNOSIS list with DISTINCT failure mechanisms.

RULES (CRITICAL):
1. Diagnoses must NOT be rewordings of the same condition. Consider hepatic failure,
   sepsis, respiratory failure, coagulopathy and renal dysfunction when evidence supports them.
2. Each diagnosis needs at least 2 support items and at least 1 "missing" item
   naming a test or trend that would discriminate it.
3. Support and against may cite ONLY patient evidence. References may cite D or C ids.
4. Confidence: low (1 support), medium (2 supports), high (3+ supports with labs).
5. Output STRICT JSON ONLY.

OUTPUT JSON:
{
  "differential": [
    {
      "diagnosis": "...",
      "support": [{"label": "...", "value": "...", "evidence_ids": ["N000001"]}],
      "against": [],
      "missing": ["..."],
      "references": [],
      "confidence": "medium"
    }
  ]
}

{{evidence}}`,

	driven.PromptReportCompose: `You are composing a clinical decision-support report.

TASK:
1. Generate 3-5 clarifying_questions that help discriminate between the differential diagnoses.
2. Generate 1-3 action_items for clinical workflow.
3. List any limitations of the available evidence.

RULES:
- Do NOT add new patient facts.
- Each clarifying question MUST cite patient evidence_ids from the snippets.
- No treatment recommendations in questions.
- Output JSON only.

OUTPUT JSON:
{
  "clarifying_questions": [
    {"question": "...", "rationale": "...", "evidence_ids": ["N000004"], "priority": "high"}
  ],
  "action_items": [
    {"item": "...", "rationale": "...", "evidence_ids": ["L000059"], "priority": "medium"}
  ],
  "limitations": ["..."]
}

{{evidence}}

QUESTION TEMPLATES (use as inspiration):
{{templates}}`,

	driven.PromptSOAPExtraction: `You are a clinical information extraction system.

TASK:
Extract structured SOAP facts from the provided EVIDENCE.

SECTIONS:
- S (Subjective): symptoms, complaints, history of present illness, onset
- O (Objective): measurements, lab values, vital signs, exam findings
- A (Assessment): diagnoses, impressions, problem list
- P (Plan): treatment plans and orders (leave empty if not documented)

RULES (CRITICAL):
1. Every fact MUST include at least one evidence_id.
2. Do NOT infer or guess.
3. Do NOT cite domain or codebook evidence (D, C) as patient facts.
4. Output STRICT JSON ONLY.

OUTPUT SCHEMA:
{
  "S": [{"label": "chief_complaint", "value": "...", "evidence_ids": ["CV_12_0"]}],
  "O": [{"label": "...", "value": "...", "evidence_ids": ["CS_12_4"]}],
  "A": [{"label": "...", "value": "...", "evidence_ids": ["CS_12_7"]}],
  "P": []
}

EVIDENCE:
{{evidence}}`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.clinical-rag/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".clinical-rag", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to embedded default if file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# Copilot Prompts

This directory contains the prompts used by the case pipeline.

## Files

- ` + "`patient_state.txt`" + ` - Extracts demographics, diagnoses, supports and labs
- ` + "`differential.txt`" + ` - Ranks distinct-mechanism diagnoses
- ` + "`report_compose.txt`" + ` - Writes clarifying questions, actions and limitations
- ` + "`soap_extraction.txt`" + ` - Extracts S/O/A/P facts

## Customisation

Edit any file to customise LLM behaviour. Changes take effect on the next run.
Delete a file to restore its default.

## Format Placeholders

Every prompt contains ` + "`{{evidence}}`" + ` where the rendered evidence block goes.
` + "`report_compose.txt`" + ` also contains ` + "`{{templates}}`" + ` for question templates.
All other text, percent signs included, is sent as written.
`
	return os.WriteFile(path, []byte(content), 0600)
}
