// Package normalisers turns raw clinical inputs into evidence records.
//
// The clinical subpackage parses a directory of line-oriented legacy files
// (narrative, labs, monitor samples, flowsheet, domain notes, codebook) into
// records with sequential ids such as N000001 and L000001. Tabular CSV and
// JSONL corpora are read by the rows adapter and split by postprocessors.
package normalisers
