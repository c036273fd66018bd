// Package raw provides the page-range extraction engines used by the content
// extractor: the MinerU command line tool, a text-only go-fitz engine and a
// wrapper that bounds how many extractions run at once.
package raw

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// Extractor turns a 0-based inclusive page range of a PDF into fragments whose
// page indices are relative to startPageID.
type Extractor interface {
	ExtractRange(ctx context.Context, pdf []byte, startPageID, endPageID int) ([]domain.Fragment, error)
}

// Engine names accepted by New.
const (
	EngineAuto   = "auto"
	EngineMinerU = "mineru"
	EngineFitz   = "fitz"
)

// Options configures New.
type Options struct {
	Engine        string
	MinerU        MinerUConfig
	MaxConcurrent int64
	Timeout       time.Duration
	Logger        *observability.Logger
}

// New builds the configured engine behind a Limited wrapper. "auto" picks
// MinerU when its binary is on PATH and falls back to the fitz text engine.
func New(opts Options) (Extractor, string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}

	engine := strings.ToLower(opts.Engine)
	if engine == "" || engine == EngineAuto {
		engine = EngineFitz
		if _, err := exec.LookPath(opts.MinerU.binary()); err == nil {
			engine = EngineMinerU
		}
	}

	var ext Extractor
	switch engine {
	case EngineMinerU:
		ext = NewMinerU(opts.MinerU, logger)
	case EngineFitz:
		ext = NewFitz(logger)
	default:
		return nil, "", domain.ValidationError(fmt.Sprintf("unknown extraction engine %q", opts.Engine), nil)
	}

	logger.Info().Str("engine", engine).Msg("Raw extractor selected")
	return NewLimited(ext, opts.MaxConcurrent, opts.Timeout), engine, nil
}

func checkRange(startPageID, endPageID int) error {
	if startPageID < 0 || endPageID < startPageID {
		return domain.ValidationError(fmt.Sprintf("invalid page range %d-%d", startPageID, endPageID), nil)
	}
	return nil
}
