// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML settings in ~/.clinical-rag/config.toml
//   - PromptStore: user-editable prompt templates with embedded defaults
//   - RuleStore: YAML overrides layered over the built-in rule tables
package file
