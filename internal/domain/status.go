package domain

import "fmt"

// PipelineStatus is the per-document ingestion state.
type PipelineStatus string

const (
	PipelineStatusUploaded             PipelineStatus = "uploaded"
	PipelineStatusTOCExtracted         PipelineStatus = "toc_extracted"
	PipelineStatusAwaitingVerification PipelineStatus = "awaiting_verification"
	PipelineStatusExtracting           PipelineStatus = "extracting"
	PipelineStatusPartiallyExtracted   PipelineStatus = "partially_extracted"
	PipelineStatusFullyExtracted       PipelineStatus = "fully_extracted"
	PipelineStatusError                PipelineStatus = "error"
)

// PipelineStatuses lists every pipeline status in graph order.
var PipelineStatuses = []PipelineStatus{
	PipelineStatusUploaded,
	PipelineStatusTOCExtracted,
	PipelineStatusAwaitingVerification,
	PipelineStatusExtracting,
	PipelineStatusPartiallyExtracted,
	PipelineStatusFullyExtracted,
	PipelineStatusError,
}

// Valid reports whether s is a known pipeline status.
func (s PipelineStatus) Valid() bool {
	_, ok := pipelineEdges[s]
	return ok
}

// HasTOC reports whether the document has passed the TOC phase.
func (s PipelineStatus) HasTOC() bool {
	switch s {
	case PipelineStatusTOCExtracted, PipelineStatusAwaitingVerification, PipelineStatusExtracting,
		PipelineStatusPartiallyExtracted, PipelineStatusFullyExtracted:
		return true
	}
	return false
}

// ExtractionStatus is the per-chapter extraction state.
type ExtractionStatus string

const (
	ExtractionStatusPending    ExtractionStatus = "pending"
	ExtractionStatusSelected   ExtractionStatus = "selected"
	ExtractionStatusExtracting ExtractionStatus = "extracting"
	ExtractionStatusExtracted  ExtractionStatus = "extracted"
	ExtractionStatusDeferred   ExtractionStatus = "deferred"
	ExtractionStatusError      ExtractionStatus = "error"
)

// Valid reports whether s is a known extraction status.
func (s ExtractionStatus) Valid() bool {
	_, ok := extractionEdges[s]
	return ok
}

type pipelineSet map[PipelineStatus]struct{}

func pipelineTo(statuses ...PipelineStatus) pipelineSet {
	set := make(pipelineSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// pipelineEdges is the document transition graph. Error is reachable from
// every state. Leaving error depends on where the failed phase started, see
// Document.ValidateTransition. Self-loops mark phases that may be re-run
// idempotently.
var pipelineEdges = map[PipelineStatus]pipelineSet{
	PipelineStatusUploaded: pipelineTo(
		PipelineStatusUploaded, PipelineStatusTOCExtracted, PipelineStatusError),
	PipelineStatusTOCExtracted: pipelineTo(
		PipelineStatusTOCExtracted, PipelineStatusAwaitingVerification, PipelineStatusError),
	PipelineStatusAwaitingVerification: pipelineTo(
		PipelineStatusExtracting, PipelineStatusError),
	PipelineStatusExtracting: pipelineTo(
		PipelineStatusExtracting, PipelineStatusPartiallyExtracted, PipelineStatusFullyExtracted, PipelineStatusError),
	PipelineStatusPartiallyExtracted: pipelineTo(
		PipelineStatusExtracting, PipelineStatusError),
	PipelineStatusFullyExtracted: pipelineTo(
		PipelineStatusExtracting, PipelineStatusError),
	PipelineStatusError: pipelineTo(
		PipelineStatusError),
}

// CanTransition reports whether a document may move from s to next.
func (s PipelineStatus) CanTransition(next PipelineStatus) bool {
	_, ok := pipelineEdges[s][next]
	return ok
}

// ValidatePipelineTransition returns an invalid_transition error when the edge
// from -> to is not part of the graph.
func ValidatePipelineTransition(from, to PipelineStatus) error {
	if !from.CanTransition(to) {
		return InvalidTransitionError(fmt.Sprintf("pipeline status %q cannot move to %q", from, to))
	}
	return nil
}

// RetryFrom is the status a phase starts from. For a failed document that is
// the status recorded when the failing phase began; a failure with no record
// falls back to uploaded, so only the TOC phase may be retried.
func (d *Document) RetryFrom() PipelineStatus {
	if d.PipelineStatus != PipelineStatusError {
		return d.PipelineStatus
	}
	if d.ResumeStatus.Valid() && d.ResumeStatus != PipelineStatusError {
		return d.ResumeStatus
	}
	return PipelineStatusUploaded
}

// ValidateTransition checks a move of the document to next. A failed
// document may only leave error along an edge of the status its failed phase
// started from, so a retry re-runs the same phase.
func (d *Document) ValidateTransition(next PipelineStatus) error {
	if next == PipelineStatusError {
		return nil
	}
	from := d.RetryFrom()
	if !from.CanTransition(next) {
		if d.PipelineStatus == PipelineStatusError {
			return InvalidTransitionError(fmt.Sprintf(
				"document %s failed while %s and cannot move to %q", d.ID, from, next))
		}
		return InvalidTransitionError(fmt.Sprintf("pipeline status %q cannot move to %q", from, next))
	}
	return nil
}

type extractionSet map[ExtractionStatus]struct{}

func extractionTo(statuses ...ExtractionStatus) extractionSet {
	set := make(extractionSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

var extractionEdges = map[ExtractionStatus]extractionSet{
	ExtractionStatusPending: extractionTo(
		ExtractionStatusPending, ExtractionStatusSelected, ExtractionStatusExtracting, ExtractionStatusDeferred),
	ExtractionStatusSelected: extractionTo(
		ExtractionStatusSelected, ExtractionStatusPending, ExtractionStatusExtracting, ExtractionStatusDeferred),
	ExtractionStatusExtracting: extractionTo(
		ExtractionStatusExtracting, ExtractionStatusExtracted, ExtractionStatusError, ExtractionStatusDeferred),
	ExtractionStatusDeferred: extractionTo(
		ExtractionStatusDeferred, ExtractionStatusExtracting, ExtractionStatusSelected),
	ExtractionStatusExtracted: extractionTo(
		ExtractionStatusExtracted, ExtractionStatusExtracting, ExtractionStatusDeferred),
	ExtractionStatusError: extractionTo(
		ExtractionStatusError, ExtractionStatusExtracting, ExtractionStatusDeferred),
}

// CanTransition reports whether a chapter may move from s to next.
func (s ExtractionStatus) CanTransition(next ExtractionStatus) bool {
	_, ok := extractionEdges[s][next]
	return ok
}

// ValidateExtractionTransition returns an invalid_transition error when the
// chapter edge from -> to is not allowed.
func ValidateExtractionTransition(from, to ExtractionStatus) error {
	if !from.CanTransition(to) {
		return InvalidTransitionError(fmt.Sprintf("extraction status %q cannot move to %q", from, to))
	}
	return nil
}

// AggregateStatus derives the document status from its chapters once an
// extraction phase has finished.
func AggregateStatus(chapters []*Chapter) PipelineStatus {
	if len(chapters) == 0 {
		return PipelineStatusPartiallyExtracted
	}
	for _, ch := range chapters {
		if ch.ExtractionStatus != ExtractionStatusExtracted {
			return PipelineStatusPartiallyExtracted
		}
	}
	return PipelineStatusFullyExtracted
}
