package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineTransitions_ForwardPath(t *testing.T) {
	path := []PipelineStatus{
		PipelineStatusUploaded,
		PipelineStatusTOCExtracted,
		PipelineStatusAwaitingVerification,
		PipelineStatusExtracting,
		PipelineStatusPartiallyExtracted,
		PipelineStatusExtracting,
		PipelineStatusFullyExtracted,
	}
	for i := 1; i < len(path); i++ {
		assert.NoError(t, ValidatePipelineTransition(path[i-1], path[i]), "%s -> %s", path[i-1], path[i])
	}
}

func TestPipelineTransitions_Rejected(t *testing.T) {
	cases := []struct {
		from, to PipelineStatus
	}{
		{PipelineStatusUploaded, PipelineStatusExtracting},
		{PipelineStatusUploaded, PipelineStatusAwaitingVerification},
		{PipelineStatusTOCExtracted, PipelineStatusExtracting},
		{PipelineStatusTOCExtracted, PipelineStatusFullyExtracted},
		{PipelineStatusAwaitingVerification, PipelineStatusTOCExtracted},
		{PipelineStatusPartiallyExtracted, PipelineStatusFullyExtracted},
		{PipelineStatusFullyExtracted, PipelineStatusTOCExtracted},
		{PipelineStatusExtracting, PipelineStatusUploaded},
	}
	for _, tc := range cases {
		err := ValidatePipelineTransition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, ErrorTypeInvalidTransition, TypeOf(err))
	}
}

func TestPipelineTransitions_ErrorReachableEverywhere(t *testing.T) {
	for _, s := range PipelineStatuses {
		assert.True(t, s.CanTransition(PipelineStatusError), "%s -> error", s)
	}
	for _, s := range PipelineStatuses {
		if s != PipelineStatusError {
			assert.False(t, PipelineStatusError.CanTransition(s), "error -> %s without a resume point", s)
		}
	}
}

func TestDocumentValidateTransition_RetryResumesFailedPhase(t *testing.T) {
	tocFailed := &Document{ID: "d1", PipelineStatus: PipelineStatusError, ResumeStatus: PipelineStatusUploaded}
	assert.NoError(t, tocFailed.ValidateTransition(PipelineStatusTOCExtracted))
	for _, next := range []PipelineStatus{
		PipelineStatusAwaitingVerification,
		PipelineStatusExtracting,
		PipelineStatusPartiallyExtracted,
		PipelineStatusFullyExtracted,
	} {
		err := tocFailed.ValidateTransition(next)
		assert.ErrorIs(t, err, ErrInvalidTransition, "error -> %s", next)
	}

	extractionFailed := &Document{ID: "d2", PipelineStatus: PipelineStatusError, ResumeStatus: PipelineStatusExtracting}
	assert.NoError(t, extractionFailed.ValidateTransition(PipelineStatusPartiallyExtracted))
	assert.NoError(t, extractionFailed.ValidateTransition(PipelineStatusFullyExtracted))
	assert.Error(t, extractionFailed.ValidateTransition(PipelineStatusTOCExtracted))
	assert.Equal(t, PipelineStatusExtracting, extractionFailed.RetryFrom())

	verificationFailed := &Document{ID: "d3", PipelineStatus: PipelineStatusError, ResumeStatus: PipelineStatusTOCExtracted}
	assert.NoError(t, verificationFailed.ValidateTransition(PipelineStatusAwaitingVerification))

	unrecorded := &Document{ID: "d4", PipelineStatus: PipelineStatusError}
	assert.Equal(t, PipelineStatusUploaded, unrecorded.RetryFrom())
	assert.Error(t, unrecorded.ValidateTransition(PipelineStatusExtracting))

	healthy := &Document{ID: "d5", PipelineStatus: PipelineStatusTOCExtracted, ResumeStatus: PipelineStatusExtracting}
	assert.Equal(t, PipelineStatusTOCExtracted, healthy.RetryFrom())
	assert.NoError(t, healthy.ValidateTransition(PipelineStatusError))
}

func TestPipelineStatus_HasTOC(t *testing.T) {
	assert.False(t, PipelineStatusUploaded.HasTOC())
	assert.False(t, PipelineStatusError.HasTOC())
	assert.True(t, PipelineStatusTOCExtracted.HasTOC())
	assert.True(t, PipelineStatusFullyExtracted.HasTOC())
	assert.False(t, PipelineStatus("bogus").Valid())
}

func TestExtractionTransitions(t *testing.T) {
	assert.NoError(t, ValidateExtractionTransition(ExtractionStatusPending, ExtractionStatusExtracting))
	assert.NoError(t, ValidateExtractionTransition(ExtractionStatusExtracted, ExtractionStatusDeferred))
	assert.NoError(t, ValidateExtractionTransition(ExtractionStatusDeferred, ExtractionStatusExtracting))
	assert.NoError(t, ValidateExtractionTransition(ExtractionStatusExtracting, ExtractionStatusError))

	assert.Error(t, ValidateExtractionTransition(ExtractionStatusPending, ExtractionStatusExtracted))
	assert.Error(t, ValidateExtractionTransition(ExtractionStatusDeferred, ExtractionStatusExtracted))
	assert.Error(t, ValidateExtractionTransition(ExtractionStatusSelected, ExtractionStatusError))
}

func TestAggregateStatus(t *testing.T) {
	all := []*Chapter{
		{ExtractionStatus: ExtractionStatusExtracted},
		{ExtractionStatus: ExtractionStatusExtracted},
	}
	assert.Equal(t, PipelineStatusFullyExtracted, AggregateStatus(all))

	some := []*Chapter{
		{ExtractionStatus: ExtractionStatusExtracted},
		{ExtractionStatus: ExtractionStatusDeferred},
	}
	assert.Equal(t, PipelineStatusPartiallyExtracted, AggregateStatus(some))
	assert.Equal(t, PipelineStatusPartiallyExtracted, AggregateStatus(nil))
}
