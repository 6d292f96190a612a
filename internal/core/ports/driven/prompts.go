package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Returns the prompt content and any error encountered.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
// These constants define the contract between prompt consumers and providers.
// Every template expects the PlaceholderEvidence marker for the rendered
// evidence block.
const (
	// PromptPatientState extracts demographics, diagnoses, procedures,
	// supports, meds and a lab timeline as JSON.
	PromptPatientState = "patient_state"

	// PromptDifferential ranks distinct-mechanism diagnoses with cited support.
	PromptDifferential = "differential"

	// PromptReportCompose writes clarifying questions, action items and limitations.
	// It also expects PlaceholderTemplates for the question templates.
	PromptReportCompose = "report_compose"

	// PromptSOAPExtraction drafts a SOAP note from section packs.
	PromptSOAPExtraction = "soap_extraction"
)

// Named placeholders substituted into prompt templates. Everything else in a
// template, percent signs included, is sent verbatim.
const (
	PlaceholderEvidence  = "{{evidence}}"
	PlaceholderTemplates = "{{templates}}"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
// Services implementing this interface can have their prompt templates customised
// by injecting a PromptStore after construction.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service should use hardcoded default prompts.
	SetPromptStore(store PromptStore)
}
