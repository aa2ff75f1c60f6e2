// Package audit implements the append-only, tamper-evident audit chain
// that records agent decisions with hash-linked entries, and the entity
// provenance sidecar that tracks immutable provenance records.
//
// See DESIGN.md for the grounding of the hash chaining, the append-only
// mutation log, and the pgxExecer abstraction over pool vs. transaction.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/hashutil"
)

// VerificationStatus is the lifecycle state of an entry's downstream
// verification (symbolic/LLM-judge).
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationFailed   VerificationStatus = "FAILED"
	VerificationSkipped  VerificationStatus = "SKIPPED"
)

// Entry is a single hash-linked record of an agent decision.
type Entry struct {
	EntryID      uuid.UUID `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	ConversationID string  `json:"conversation_id"`
	DecisionType string    `json:"decision_type"`
	AgentID      string    `json:"agent_id"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`

	InputHash    string `json:"input_hash"`
	InputSummary string `json:"input_summary"`

	ContextSources    []string `json:"context_sources"`
	ReasoningSummary  string   `json:"reasoning_summary"`
	Alternatives      []string `json:"alternatives"`
	SelectedAction    string   `json:"selected_action"`
	ConfidenceScore   float64  `json:"confidence_score"`
	RulesApplied      []string `json:"rules_applied"`

	OutputHash    string `json:"output_hash"`
	OutputSummary string `json:"output_summary"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifierIDs         []string          `json:"verifier_ids"`
	VerificationScores  []float64         `json:"verification_scores"`
	SourceDocuments     []string          `json:"source_documents"`

	ParentEntryID   *uuid.UUID  `json:"parent_entry_id,omitempty"`
	ChildEntryIDs   []uuid.UUID `json:"child_entry_ids"`
	PreviousEntryHash string    `json:"previous_entry_hash"`
	EntryHash         string    `json:"entry_hash"`

	Metadata map[string]any `json:"metadata"`
}

// hashSubset is the canonical field subset entry_hash is computed over
// (entry_id, timestamp, decision_type, agent_id, input_hash,
// output_hash, confidence_score, verification_status, previous_entry_hash).
type hashSubset struct {
	EntryID            string  `json:"entry_id"`
	Timestamp          string  `json:"timestamp"`
	DecisionType       string  `json:"decision_type"`
	AgentID            string  `json:"agent_id"`
	InputHash          string  `json:"input_hash"`
	OutputHash         string  `json:"output_hash"`
	ConfidenceScore    float64 `json:"confidence_score"`
	VerificationStatus string  `json:"verification_status"`
	PreviousEntryHash  string  `json:"previous_entry_hash"`
}

// computeEntryHash computes entry_hash = SHA256(canonical(subset)).
func computeEntryHash(e Entry) string {
	return hashutil.HashContent(hashSubset{
		EntryID:            e.EntryID.String(),
		Timestamp:          e.Timestamp.UTC().Format(time.RFC3339Nano),
		DecisionType:       e.DecisionType,
		AgentID:            e.AgentID,
		InputHash:          e.InputHash,
		OutputHash:         e.OutputHash,
		ConfidenceScore:    e.ConfidenceScore,
		VerificationStatus: string(e.VerificationStatus),
		PreviousEntryHash:  e.PreviousEntryHash,
	})
}

// RecordInput is the caller-supplied content for a new entry. Inputs and
// Outputs are hashed and summarized by Record; every other field is
// copied through verbatim.
type RecordInput struct {
	DecisionType   string
	AgentID        string
	SessionID      string
	ConversationID string
	ModelName      string
	ModelVersion   string

	Inputs  any
	Outputs any

	ContextSources   []string
	ReasoningSummary string
	Alternatives     []string
	SelectedAction   string
	ConfidenceScore  float64
	RulesApplied     []string

	SourceDocuments []string
	ParentEntryID   *uuid.UUID
	Metadata        map[string]any
}

const summaryMaxChars = 200
