// Package domain defines the core clinical entities for the copilot.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - EvidenceRecord: An atomic, citable span of source text
//   - IndexBundle: One atomic generation of store, lexical and vector artifacts
//   - SOAPContext: Classified facts keyed by clinical section
//   - Report: The evidence-grounded clinical report
//   - RuleSet: Declarative keyword tables driving classification and cleanup
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
