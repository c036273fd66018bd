package raw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pdfdoc/pdftest"
)

const fakeMinerU = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    -s) start="$2"; shift ;;
    -e) end="$2"; shift ;;
  esac
  shift
done
dir="$out/document/auto"
mkdir -p "$dir/images"
printf 'jpg' > "$dir/images/fig.jpg"
cat > "$dir/document_content_list.json" <<EOF
[
  {"type": "text", "text": "pages $start-$end", "page_idx": 0},
  {"type": "image", "img_path": "images/fig.jpg", "image_caption": ["Figure 1"], "page_idx": 1},
  {"type": "discarded", "text": "header", "page_idx": 1}
]
EOF
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "mineru")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestMinerU_ExtractRange(t *testing.T) {
	assets := t.TempDir()
	m := NewMinerU(MinerUConfig{Path: writeScript(t, fakeMinerU), AssetsDir: assets}, nil)
	assert.True(t, m.Available())

	fragments, err := m.ExtractRange(context.Background(), []byte("%PDF-1.4"), 4, 5)
	require.NoError(t, err)
	require.Len(t, fragments, 3)

	text, ok := fragments[0].(domain.TextFragment)
	require.True(t, ok)
	assert.Equal(t, "pages 4-5", text.Text)

	fig, ok := fragments[1].(domain.FigureFragment)
	require.True(t, ok)
	idx, ok := fig.PageIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"Figure 1"}, fig.Caption)
	assert.True(t, strings.HasPrefix(fig.ImgPath, assets))
	assert.Equal(t, filepath.Join(assets, pdfKey(t, []byte("%PDF-1.4")), filepath.Base(fig.ImgPath)), fig.ImgPath)
	data, err := os.ReadFile(fig.ImgPath)
	require.NoError(t, err)
	assert.Equal(t, "jpg", string(data))

	assert.IsType(t, domain.DiscardedFragment{}, fragments[2])
}

func pdfKey(t *testing.T, pdf []byte) string {
	t.Helper()
	sum := sha256.Sum256(pdf)
	key := assetsKey(sum)
	require.Len(t, key, 8)
	assert.Equal(t, hex.EncodeToString(sum[:4]), key)
	return key
}

func TestMinerU_MissingBinary(t *testing.T) {
	m := NewMinerU(MinerUConfig{Path: filepath.Join(t.TempDir(), "no-such-mineru")}, nil)
	assert.False(t, m.Available())

	_, err := m.ExtractRange(context.Background(), []byte("%PDF"), 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionUnavailable)
}

func TestMinerU_MissingOutput(t *testing.T) {
	m := NewMinerU(MinerUConfig{Path: writeScript(t, "#!/bin/sh\nexit 0\n")}, nil)

	_, err := m.ExtractRange(context.Background(), []byte("%PDF"), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestMinerU_NonZeroExit(t *testing.T) {
	m := NewMinerU(MinerUConfig{Path: writeScript(t, "#!/bin/sh\necho boom >&2\nexit 3\n")}, nil)

	_, err := m.ExtractRange(context.Background(), []byte("%PDF"), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestFitz_ExtractRange(t *testing.T) {
	pdf := pdftest.Build([]string{"one", "two", "three", "four"}, nil)
	f := NewFitz(nil)

	fragments, err := f.ExtractRange(context.Background(), pdf, 1, 2)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	first := fragments[0].(domain.TextFragment)
	idx, _ := first.PageIndex()
	assert.Equal(t, 0, idx)
	assert.Contains(t, first.Text, "two")

	second := fragments[1].(domain.TextFragment)
	idx, _ = second.PageIndex()
	assert.Equal(t, 1, idx)
	assert.Contains(t, second.Text, "three")

	_, err = f.ExtractRange(context.Background(), pdf, 7, 8)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)

	_, err = f.ExtractRange(context.Background(), []byte("not a pdf"), 0, 0)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, checkRange(0, 0))
	assert.ErrorIs(t, checkRange(-1, 0), domain.ErrValidation)
	assert.ErrorIs(t, checkRange(3, 2), domain.ErrValidation)
}

type slowExtractor struct {
	active  int32
	maxSeen int32
}

func (s *slowExtractor) ExtractRange(ctx context.Context, _ []byte, _, _ int) ([]domain.Fragment, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, n) {
			break
		}
	}
	select {
	case <-time.After(20 * time.Millisecond):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLimited_BoundsConcurrency(t *testing.T) {
	inner := &slowExtractor{}
	l := NewLimited(inner, 2, 0)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ExtractRange(context.Background(), nil, 0, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&inner.maxSeen), int32(2))
}

func TestLimited_Timeout(t *testing.T) {
	l := NewLimited(&slowExtractor{}, 1, time.Millisecond)

	_, err := l.ExtractRange(context.Background(), nil, 0, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Engines(t *testing.T) {
	_, engine, err := New(Options{Engine: "fitz"})
	require.NoError(t, err)
	assert.Equal(t, EngineFitz, engine)

	_, engine, err = New(Options{Engine: "auto", MinerU: MinerUConfig{Path: filepath.Join(t.TempDir(), "missing")}})
	require.NoError(t, err)
	assert.Equal(t, EngineFitz, engine)

	_, engine, err = New(Options{Engine: "auto", MinerU: MinerUConfig{Path: writeScript(t, fakeMinerU)}})
	require.NoError(t, err)
	assert.Equal(t, EngineMinerU, engine)

	_, _, err = New(Options{Engine: "tesseract"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
