package pipeline

import (
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// Phase names an orchestrator phase.
type Phase string

const (
	PhaseImport       Phase = "import"
	PhaseTOC          Phase = "toc"
	PhaseVerification Phase = "verification"
	PhaseExtraction   Phase = "extraction"
	PhaseDeferred     Phase = "deferred_extraction"
)

// PhaseResult is what every phase returns. Failures are carried in Error and
// ErrorType with Status set to error; phases never return a Go error.
type PhaseResult struct {
	DocumentID string                   `json:"document_id"`
	Phase      Phase                    `json:"phase"`
	Status     domain.PipelineStatus    `json:"pipeline_status"`
	Error      string                   `json:"error,omitempty"`
	ErrorType  domain.ErrorType         `json:"error_type,omitempty"`
	Warning    string                   `json:"warning,omitempty"`
	Chapters   []*domain.Chapter        `json:"chapters,omitempty"`
	Relevance  []domain.RelevanceResult `json:"relevance_results,omitempty"`
	Extracted  []string                 `json:"extracted,omitempty"`
	Failed     []string                 `json:"failed,omitempty"`

	// Err is the underlying error, for errors.Is checks by in-process callers.
	Err error `json:"-"`

	// stored is set once the document is known to exist; resume is where a
	// retry of the phase starts from if it fails.
	stored bool
	resume domain.PipelineStatus
}

// track notes that the document exists and the status the phase started from.
func (r *PhaseResult) track(doc *domain.Document) {
	r.stored = true
	r.resume = doc.RetryFrom()
}

// OK reports whether the phase succeeded.
func (r PhaseResult) OK() bool {
	return r.Error == ""
}
