// Package triage provides the business boundary for DocBox's clinical inbox
// triage system. It defines the Classifier (ordered trigger table with an
// LLM fallback), the triage grid bucketing, the Service (ingestion,
// corrections, status changes, escalation with its audit trail), the Store
// interface (persistence), and the domain models.
package triage
