package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratonally/toolhost/internal/workspace"
)

func newRequest(t *testing.T) Request {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return Request{
		Inputs:      map[string]any{},
		Staged:      map[string][]string{},
		Workspace:   ws,
		ScriptPath:  filepath.Join(t.TempDir(), "WEBP", "convert.py"),
		Interpreter: "/usr/bin/python3",
	}
}

func stageFile(t *testing.T, req Request, key, name string) string {
	t.Helper()
	path, err := req.Workspace.Path(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	req.Staged[key] = append(req.Staged[key], path)
	return path
}

func TestDefaultCatalogLookup(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{ToolImageConvert, ToolXlsxToJSON, ToolSiteExtract}, c.IDs())

	tool, ok := c.Describe(ToolXlsxToJSON)
	require.True(t, ok)
	assert.Equal(t, "Excel (.xlsx) to JSON", tool.DisplayName)
	assert.Equal(t, "outputName", tool.UI.Artifact.FilenameFromInputKey)

	_, ok = c.Describe("WEBP/other.py")
	assert.False(t, ok, "lookup is exact match only")
}

func TestBuildImageConvertClampsAndStages(t *testing.T) {
	req := newRequest(t)
	stageFile(t, req, "images", "a.png")
	stageFile(t, req, "images", "b.jpg")
	req.Inputs["quality"] = float64(400)
	req.Inputs["method"] = float64(-2)
	req.Inputs["lossless"] = true

	plan, err := buildImageConvert(req)
	require.NoError(t, err)

	assert.Equal(t, req.Interpreter, plan.Argv[0])
	assert.Equal(t, req.ScriptPath, plan.Argv[1])
	assert.Contains(t, plan.Argv, "--quality")
	assert.Contains(t, plan.Argv, "100", "quality clamped to range, not rejected")
	assert.Contains(t, plan.Argv, "--method")
	assert.Contains(t, plan.Argv, "0", "method clamped to range")
	assert.Contains(t, plan.Argv, "--lossless")
	assert.Equal(t, filepath.Dir(req.ScriptPath), plan.Dir)

	// Staged images moved into target/, archive planned over output/.
	assert.FileExists(t, filepath.Join(req.Workspace.Root(), "target", "a.png"))
	assert.FileExists(t, filepath.Join(req.Workspace.Root(), "target", "b.jpg"))
	assert.Equal(t, filepath.Join(req.Workspace.Root(), "output"), plan.Collect.Dir)
	assert.Equal(t, "webp_output.zip", plan.Collect.Name)
}

func TestBuildImageConvertToleratesDuplicateUploadNames(t *testing.T) {
	req := newRequest(t)
	stageFile(t, req, "images", "photo.png")
	stageFile(t, req, "images", "photo.png")

	plan, err := buildImageConvert(req)
	require.NoError(t, err, "colliding upload names must not fail the build")
	assert.FileExists(t, filepath.Join(req.Workspace.Root(), "target", "photo.png"))
	assert.Equal(t, "webp_output.zip", plan.Collect.Name)
}

func TestBuildImageConvertRequiresImages(t *testing.T) {
	_, err := buildImageConvert(newRequest(t))
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildImageConvertDefaults(t *testing.T) {
	req := newRequest(t)
	stageFile(t, req, "images", "a.png")

	plan, err := buildImageConvert(req)
	require.NoError(t, err)
	assert.Contains(t, plan.Argv, "80")
	assert.Contains(t, plan.Argv, "6")
	assert.Contains(t, plan.Argv, "--force")
	assert.NotContains(t, plan.Argv, "--lossless")
}

func TestBuildXlsxToJSON(t *testing.T) {
	req := newRequest(t)
	input := stageFile(t, req, "xlsx", "book.xlsx")
	req.Inputs["outputName"] = "../sneaky/report"

	plan, err := buildXlsxToJSON(req)
	require.NoError(t, err)

	wantOut := filepath.Join(req.Workspace.Root(), "report.json")
	assert.Equal(t, []string{req.Interpreter, req.ScriptPath, input, wantOut}, plan.Argv)
	assert.Equal(t, wantOut, plan.Collect.File)
	assert.Equal(t, "application/json", plan.Collect.MIME)
}

func TestBuildXlsxToJSONRequiresExactlyOneUpload(t *testing.T) {
	req := newRequest(t)
	_, err := buildXlsxToJSON(req)
	require.ErrorIs(t, err, ErrValidation)

	stageFile(t, req, "xlsx", "a.xlsx")
	stageFile(t, req, "xlsx", "b.xlsx")
	_, err = buildXlsxToJSON(req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildSiteExtract(t *testing.T) {
	req := newRequest(t)
	req.Inputs["url"] = "https://example.com/"

	plan, err := buildSiteExtract(req)
	require.NoError(t, err)
	assert.Equal(t, []string{
		req.Interpreter, req.ScriptPath,
		"--url", "https://example.com/",
		"--output", filepath.Join(req.Workspace.Root(), "info.md"),
	}, plan.Argv)
	assert.Equal(t, "text/markdown", plan.Collect.MIME)

	req.Inputs["url"] = "   "
	_, err = buildSiteExtract(req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestOutputNamePermissiveFallback(t *testing.T) {
	assert.Equal(t, "output.json", OutputName(nil, "output.json", ".json"))
	assert.Equal(t, "output.json", OutputName("   ", "output.json", ".json"))
	assert.Equal(t, "report.json", OutputName("report", "output.json", ".json"))
	assert.Equal(t, "report.json", OutputName("dir/../report.json", "output.json", ".json"))
	assert.Equal(t, "Report.JSON", OutputName("Report.JSON", "output.json", ".json"))
	assert.Equal(t, "info.md", OutputName(42, "info.md", ".md"))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 80, clampInt(nil, 80, 0, 100))
	assert.Equal(t, 55, clampInt(float64(55), 80, 0, 100))
	assert.Equal(t, 100, clampInt(float64(1000), 80, 0, 100))
	assert.Equal(t, 0, clampInt(float64(-3), 80, 0, 100))
	assert.Equal(t, 42, clampInt("42", 80, 0, 100))
	assert.Equal(t, 80, clampInt("junk", 80, 0, 100))
}
