package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/clock"
	"github.com/akashi-ai/noema/internal/hashutil"
)

// buildEntry constructs a new, fully-hashed Entry linked to previousHash.
// Shared by every backend so the hashing/linking logic lives in one place
// (Record contract).
func buildEntry(cl clock.Clock, previousHash string, in RecordInput) Entry {
	if cl == nil {
		cl = clock.Real{}
	}
	now := cl.Now()

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	e := Entry{
		EntryID:            uuid.New(),
		Timestamp:          now,
		SessionID:          in.SessionID,
		ConversationID:     in.ConversationID,
		DecisionType:       in.DecisionType,
		AgentID:            in.AgentID,
		ModelName:          in.ModelName,
		ModelVersion:       in.ModelVersion,
		InputHash:          hashutil.HashContent(in.Inputs),
		InputSummary:       hashutil.SummarizeContent(in.Inputs, summaryMaxChars),
		ContextSources:     in.ContextSources,
		ReasoningSummary:   in.ReasoningSummary,
		Alternatives:       in.Alternatives,
		SelectedAction:     in.SelectedAction,
		ConfidenceScore:    in.ConfidenceScore,
		RulesApplied:       in.RulesApplied,
		OutputHash:         hashutil.HashContent(in.Outputs),
		OutputSummary:      hashutil.SummarizeContent(in.Outputs, summaryMaxChars),
		VerificationStatus: VerificationPending,
		VerifierIDs:        nil,
		VerificationScores: nil,
		SourceDocuments:    in.SourceDocuments,
		ParentEntryID:      in.ParentEntryID,
		ChildEntryIDs:      nil,
		PreviousEntryHash:  previousHash,
		Metadata:           metadata,
	}
	e.EntryHash = computeEntryHash(e)
	return e
}

// verifyChain recomputes hashes/linkage over entries in stored order
// (VerifyIntegrity algorithm).
func verifyChain(entries []Entry) IntegrityReport {
	var report IntegrityReport
	var prevHash string
	for i, e := range entries {
		h := computeEntryHash(e)
		if h != e.EntryHash {
			report.Issues = append(report.Issues, Issue{EntryID: e.EntryID, Index: i, Kind: IssueHashMismatch})
		}
		if i > 0 && e.PreviousEntryHash != prevHash {
			report.Issues = append(report.Issues, Issue{EntryID: e.EntryID, Index: i, Kind: IssueChainBreak})
		}
		prevHash = h
	}
	return report
}

// nowUTC is a small helper kept for backends that don't thread a clock
// through (file/SQL backends use server/wall time for created_at style
// bookkeeping outside the hash-chain itself).
func nowUTC() time.Time { return time.Now().UTC() }
