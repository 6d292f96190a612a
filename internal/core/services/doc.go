// Package services implements the driving ports of the copilot: ingestion,
// index builds, hybrid and section retrieval, the LLM orchestrator, report
// validation, cleanup, the quality gate and the case and batch pipelines.
//
// Services depend only on domain types and driven ports, so every stage can
// be tested with in-memory stores and scripted LLM replies.
package services
