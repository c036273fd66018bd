package raw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

const (
	mineruInputName  = "document"
	mineruParseAuto  = "auto"
	outputTailLength = 2000
)

// MinerUConfig configures the MinerU engine.
type MinerUConfig struct {
	// Path is the mineru executable, looked up on PATH when not absolute.
	Path    string
	Backend string
	Lang    string
	// AssetsDir receives figure and table images. Empty leaves img_path
	// pointing into the (deleted) working directory.
	AssetsDir string
}

func (c MinerUConfig) binary() string {
	if c.Path == "" {
		return "mineru"
	}
	return c.Path
}

// MinerU runs the MinerU command line tool in a subprocess, one process per
// call, and reads back its content list.
type MinerU struct {
	cfg    MinerUConfig
	logger *observability.Logger
}

// NewMinerU creates a MinerU engine.
func NewMinerU(cfg MinerUConfig, logger *observability.Logger) *MinerU {
	if cfg.Backend == "" {
		cfg.Backend = "pipeline"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &MinerU{cfg: cfg, logger: logger}
}

// Available reports whether the mineru binary can be found.
func (m *MinerU) Available() bool {
	_, err := exec.LookPath(m.cfg.binary())
	return err == nil
}

// ExtractRange implements Extractor.
func (m *MinerU) ExtractRange(ctx context.Context, pdf []byte, startPageID, endPageID int) ([]domain.Fragment, error) {
	if err := checkRange(startPageID, endPageID); err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(m.cfg.binary())
	if err != nil {
		return nil, domain.ExtractionUnavailableError("mineru is not installed", err)
	}

	workDir, err := os.MkdirTemp("", "lazylearn-mineru-*")
	if err != nil {
		return nil, domain.ExtractionFailedError("create working directory", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, mineruInputName+".pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, domain.ExtractionFailedError("write input pdf", err)
	}
	outDir := filepath.Join(workDir, "out")

	cmd := exec.CommandContext(ctx, bin,
		"-p", input,
		"-o", outDir,
		"-b", m.cfg.Backend,
		"-m", mineruParseAuto,
		"-l", m.cfg.Lang,
		"-s", strconv.Itoa(startPageID),
		"-e", strconv.Itoa(endPageID),
	)

	m.logger.Debug().
		Str("binary", bin).
		Int("start_page_id", startPageID).
		Int("end_page_id", endPageID).
		Msg("Running MinerU")

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ExtractionFailedError("mineru interrupted", ctxErr)
		}
		return nil, domain.ExtractionFailedError(fmt.Sprintf("mineru failed: %s", tail(output)), err)
	}

	resultDir := filepath.Join(outDir, mineruInputName, m.parseDir())
	data, err := os.ReadFile(filepath.Join(resultDir, mineruInputName+"_content_list.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ExtractionFailedError("mineru content list missing", err)
		}
		return nil, domain.ExtractionFailedError("read mineru content list", err)
	}

	var entries []domain.RawFragment
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, domain.ExtractionFailedError("malformed mineru content list", err)
	}

	if m.cfg.AssetsDir != "" {
		if err := m.relocateImages(entries, resultDir, pdf); err != nil {
			return nil, domain.ExtractionFailedError("copy extracted images", err)
		}
	}

	fragments := make([]domain.Fragment, 0, len(entries))
	for _, e := range entries {
		fragments = append(fragments, e.Fragment())
	}
	return fragments, nil
}

// parseDir is the sub-directory MinerU writes results to for the backend.
func (m *MinerU) parseDir() string {
	if strings.HasPrefix(m.cfg.Backend, "vlm") {
		return "vlm"
	}
	return mineruParseAuto
}

func assetsKey(sum [sha256.Size]byte) string {
	return hex.EncodeToString(sum[:])[:8]
}

// relocateImages copies referenced images out of the working directory into
// AssetsDir/<first 8 hex digits of the PDF's sha256>/ and rewrites img_path
// to the copy.
func (m *MinerU) relocateImages(entries []domain.RawFragment, resultDir string, pdf []byte) error {
	sum := sha256.Sum256(pdf)
	dest := filepath.Join(m.cfg.AssetsDir, assetsKey(sum))

	for i := range entries {
		rel := entries[i].ImgPath
		if rel == "" || filepath.IsAbs(rel) {
			continue
		}
		src := filepath.Join(resultDir, filepath.FromSlash(rel))
		if _, err := os.Stat(src); err != nil {
			m.logger.Warn().Str("img_path", rel).Msg("Image referenced by MinerU is missing")
			continue
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.Base(rel))
		if err := copyFile(src, target); err != nil {
			return err
		}
		entries[i].ImgPath = target
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > outputTailLength {
		s = s[len(s)-outputTailLength:]
	}
	return s
}
