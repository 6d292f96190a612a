// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EvidenceStore: Read-only id to record lookup for one corpus generation
//   - LexicalIndex: BM25 relevance over the corpus
//   - IndexFactory: Builds and reopens lexical and vector indexes
//   - BundleStore: Atomic persistence of index generations
//   - Splitter: Chunks and segments free-text fields
//   - ConfigStore: Application configuration
//   - RuleStore: Declarative classification and cleanup tables
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Without it, retrieval scores lexical relevance only.
//   - LLMService: Without it, generation stages use deterministic fallbacks.
//   - RunStore: Without it, run summaries are not persisted.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, postprocessor, or normaliser package
package driven
