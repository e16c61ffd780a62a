package server

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stratonally/toolhost/internal/config"
)

// Shell payloads stand in for the real collaborator scripts; the test
// server points its interpreter at /bin/sh so the CLI contract is what
// gets exercised, not any script's internals.

const convertStub = `
target=""; output=""
while [ $# -gt 0 ]; do
  case "$1" in
    --target) target="$2"; shift 2 ;;
    --output) output="$2"; shift 2 ;;
    --quality|--method) shift 2 ;;
    --force|--lossless) shift ;;
    *) shift ;;
  esac
done
[ -d "$target" ] || { echo "no target dir" >&2; exit 1; }
for f in "$target"/*; do
  [ -f "$f" ] || continue
  base=$(basename "$f")
  cp "$f" "$output/${base%.*}.webp"
done
`

const getinfoStub = `
url=""; output=""
while [ $# -gt 0 ]; do
  case "$1" in
    --url) url="$2"; shift 2 ;;
    --output) output="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf '# %s\n' "$url" > "$output"
`

func uploadRecord(name, content string) map[string]any {
	return map[string]any{
		"name":   name,
		"base64": base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

func TestImageConversionEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "WEBP/convert.py", convertStub)

	rr := doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
		"toolRelPath": "WEBP/convert.py",
		"inputs":      map[string]any{"quality": 80, "method": 6},
		"files": map[string]any{
			"images": []any{
				uploadRecord("photo-one.png", "png-bytes-one"),
				uploadRecord("photo-two.jpg", "jpg-bytes-two"),
			},
		},
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.ReturnCode == nil || *env.ReturnCode != 0 {
		t.Fatalf("returnCode = %v stderr=%q", env.ReturnCode, env.Stderr)
	}
	if len(env.Artifacts) != 1 {
		t.Fatalf("artifacts = %d", len(env.Artifacts))
	}
	art := env.Artifacts[0]
	if art.Filename != "webp_output.zip" || art.Mime != "application/zip" {
		t.Fatalf("artifact = %+v", art)
	}

	raw, err := base64.StdEncoding.DecodeString(art.Base64)
	if err != nil {
		t.Fatalf("artifact decode: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("zip open: %v", err)
	}
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	sort.Strings(names)
	want := []string{"photo-one.webp", "photo-two.webp"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}
}

func TestSpreadsheetFailureYieldsZeroArtifacts(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "XLXS_JSON/convert.py", "echo \"could not open workbook\" >&2\nexit 2\n")

	rr := doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
		"toolRelPath": "XLXS_JSON/convert.py",
		"inputs":      map[string]any{"outputName": "report.json"},
		"files":       map[string]any{"xlsx": uploadRecord("book.xlsx", "not really xlsx")},
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("script failure is payload data, status = %d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.ReturnCode == nil || *env.ReturnCode != 2 {
		t.Fatalf("returnCode = %v", env.ReturnCode)
	}
	if len(env.Artifacts) != 0 {
		t.Fatalf("artifacts = %+v", env.Artifacts)
	}
	if !strings.Contains(env.Stderr, "could not open workbook") {
		t.Fatalf("stderr = %q", env.Stderr)
	}
}

func TestDependencyHintRewritesError(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "XLXS_JSON/convert.py", "echo \"ModuleNotFoundError: No module named 'openpyxl'\" >&2\nexit 1\n")

	rr := doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
		"toolRelPath": "XLXS_JSON/convert.py",
		"inputs":      map[string]any{},
		"files":       map[string]any{"xlsx": uploadRecord("book.xlsx", "data")},
	}, "")
	env := decodeEnvelope(t, rr)
	if !strings.Contains(env.Error, "Missing dependency: openpyxl") {
		t.Fatalf("error = %q", env.Error)
	}
}

func TestSiteExtractProducesNamedArtifact(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "WEBP/getinfo.py", getinfoStub)

	rr := doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
		"toolRelPath": "WEBP/getinfo.py",
		"inputs": map[string]any{
			"url":        "https://example.com/",
			"outputName": "page",
		},
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.ReturnCode == nil || *env.ReturnCode != 0 {
		t.Fatalf("returnCode = %v stderr=%q", env.ReturnCode, env.Stderr)
	}
	if len(env.Artifacts) != 1 {
		t.Fatalf("artifacts = %d", len(env.Artifacts))
	}
	if env.Artifacts[0].Filename != "page.md" {
		t.Fatalf("artifact name = %q", env.Artifacts[0].Filename)
	}
	raw, _ := base64.StdEncoding.DecodeString(env.Artifacts[0].Base64)
	if !strings.Contains(string(raw), "https://example.com/") {
		t.Fatalf("artifact content = %q", raw)
	}
}

func TestOversizedUploadNeverSpawnsSubprocess(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Limits.MaxUploadBytes = 64
	})
	// The stub drops a marker file so a spawn would be observable.
	writeScript(t, s, "XLXS_JSON/convert.py", "touch \"$(dirname \"$0\")/ran.marker\"\n")

	rr := doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
		"toolRelPath": "XLXS_JSON/convert.py",
		"inputs":      map[string]any{},
		"files":       map[string]any{"xlsx": uploadRecord("big.xlsx", strings.Repeat("x", 200))},
	}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Upload too large") {
		t.Fatalf("body = %s", rr.Body.String())
	}
	marker := filepath.Join(s.cfg.ExecRoot, "XLXS_JSON", "ran.marker")
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("subprocess ran despite rejected upload (stat err = %v)", err)
	}
}

func TestTimeoutReturnsNullCodeAndPartialOutput(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "WEBP/getinfo.py", "echo partial\nsleep 30\n")

	start := time.Now()
	rr := doJSON(t, s, http.MethodPost, "/api/tool/run?timeout=1", map[string]any{
		"toolRelPath": "WEBP/getinfo.py",
		"inputs":      map[string]any{"url": "https://example.com/"},
	}, "")
	elapsed := time.Since(start)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if elapsed > 5*time.Second {
		t.Fatalf("request took %v, expected deadline near 1s", elapsed)
	}
	env := decodeEnvelope(t, rr)
	if env.ReturnCode != nil {
		t.Fatalf("returnCode = %v, want null", *env.ReturnCode)
	}
	if !strings.Contains(env.Error, "Timed out after 1s") {
		t.Fatalf("error = %q", env.Error)
	}
	if !strings.Contains(env.Stdout, "partial") {
		t.Fatalf("stdout = %q, want preserved partial output", env.Stdout)
	}
}

func TestWorkspacesAreRemovedAfterEachRun(t *testing.T) {
	s := newTestServer(t, nil)
	writeScript(t, s, "WEBP/getinfo.py", getinfoStub)
	writeScript(t, s, "XLXS_JSON/convert.py", "exit 3\n")

	for i := 0; i < 3; i++ {
		doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
			"toolRelPath": "WEBP/getinfo.py",
			"inputs":      map[string]any{"url": "https://example.com/"},
		}, "")
		doJSON(t, s, http.MethodPost, "/api/tool/run", map[string]any{
			"toolRelPath": "XLXS_JSON/convert.py",
			"inputs":      map[string]any{},
			"files":       map[string]any{"xlsx": uploadRecord("b.xlsx", "data")},
		}, "")
	}

	entries, err := os.ReadDir(s.workspaceBase)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("leaked workspaces: %v", names)
	}
}
