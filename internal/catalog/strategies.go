package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stratonally/toolhost/internal/workspace"
)

// Tool identifiers are the scripts' paths relative to the exec root.
const (
	ToolImageConvert = "WEBP/convert.py"
	ToolXlsxToJSON   = "XLXS_JSON/convert.py"
	ToolSiteExtract  = "WEBP/getinfo.py"
)

func intPtr(v int) *int { return &v }

// Default returns the deployed tool set.
func Default() *Catalog {
	return New(imageConvertTool(), xlsxToJSONTool(), siteExtractTool())
}

func imageConvertTool() Tool {
	return Tool{
		ID:          ToolImageConvert,
		DisplayName: "Convert Images to WebP",
		Summary:     "Upload images and get a ZIP of .webp outputs.",
		UI: UI{
			Mode: "guided",
			Inputs: []Input{
				{
					Key: "images", Label: "Images", Type: "files", Required: true, Multiple: true,
					Accept: []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".gif", ".webp"},
				},
				{Key: "quality", Label: "Quality (0-100)", Type: "number", Min: intPtr(0), Max: intPtr(100), Default: 80},
				{Key: "method", Label: "Method (0-6)", Type: "number", Min: intPtr(0), Max: intPtr(6), Default: 6},
				{Key: "lossless", Label: "Lossless", Type: "boolean", Default: false},
			},
			Artifact: ArtifactSpec{Filename: "webp_output.zip", MIME: "application/zip"},
		},
		Build: buildImageConvert,
	}
}

func buildImageConvert(req Request) (Plan, error) {
	images := req.Staged["images"]
	if len(images) == 0 {
		return Plan{}, fmt.Errorf("%w: please upload one or more images", ErrValidation)
	}

	targetDir, err := req.Workspace.Mkdir("target")
	if err != nil {
		return Plan{}, err
	}
	outDir, err := req.Workspace.Mkdir("output")
	if err != nil {
		return Plan{}, err
	}
	// Uploads sharing a filename stage to the same path; move it once.
	moved := make(map[string]bool, len(images))
	for _, img := range images {
		if moved[img] {
			continue
		}
		moved[img] = true
		if err := os.Rename(img, filepath.Join(targetDir, filepath.Base(img))); err != nil {
			return Plan{}, fmt.Errorf("move %s into target: %w", filepath.Base(img), err)
		}
	}

	quality := clampInt(req.Inputs["quality"], 80, 0, 100)
	method := clampInt(req.Inputs["method"], 6, 0, 6)

	argv := []string{
		req.Interpreter, req.ScriptPath,
		"--target", targetDir,
		"--output", outDir,
		"--quality", strconv.Itoa(quality),
		"--method", strconv.Itoa(method),
		"--force",
	}
	if boolInput(req.Inputs["lossless"]) {
		argv = append(argv, "--lossless")
	}

	return Plan{
		Argv:    argv,
		Dir:     filepath.Dir(req.ScriptPath),
		Collect: Collect{Dir: outDir, Name: "webp_output.zip"},
		Hints: []Hint{
			{Pattern: "Missing dependency: Pillow", Message: "Missing dependency: Pillow (install it in WEBP/.venv)."},
			{Pattern: "No module named 'PIL'", Message: "Missing dependency: Pillow (install it in WEBP/.venv)."},
		},
	}, nil
}

func xlsxToJSONTool() Tool {
	return Tool{
		ID:          ToolXlsxToJSON,
		DisplayName: "Excel (.xlsx) to JSON",
		Summary:     "Upload an Excel file and download JSON.",
		UI: UI{
			Mode: "guided",
			Inputs: []Input{
				{Key: "xlsx", Label: "Excel file (.xlsx)", Type: "file", Required: true, Accept: []string{".xlsx"}},
				{Key: "outputName", Label: "Output filename", Type: "text", Default: "output.json"},
			},
			Artifact: ArtifactSpec{FilenameFromInputKey: "outputName", MIME: "application/json"},
		},
		Build: buildXlsxToJSON,
	}
}

func buildXlsxToJSON(req Request) (Plan, error) {
	uploads := req.Staged["xlsx"]
	if len(uploads) != 1 {
		return Plan{}, fmt.Errorf("%w: please upload one .xlsx file", ErrValidation)
	}

	outputName := OutputName(req.Inputs["outputName"], "output.json", ".json")
	outputPath, err := req.Workspace.Path(outputName)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Argv:    []string{req.Interpreter, req.ScriptPath, uploads[0], outputPath},
		Dir:     filepath.Dir(req.ScriptPath),
		Collect: Collect{File: outputPath, MIME: "application/json"},
		Hints: []Hint{
			{Pattern: "No module named 'openpyxl'", Message: "Missing dependency: openpyxl (install it in the tool's .venv)."},
			{Pattern: "Missing dependency: openpyxl", Message: "Missing dependency: openpyxl (install it in the tool's .venv)."},
		},
	}, nil
}

func siteExtractTool() Tool {
	return Tool{
		ID:          ToolSiteExtract,
		DisplayName: "Website Text Extract (Markdown)",
		Summary:     "Crawl a website and export visible text to a .md file.",
		UI: UI{
			Mode: "guided",
			Inputs: []Input{
				{Key: "url", Label: "Website URL", Type: "url", Required: true, Default: "https://adsons.net/"},
				{Key: "outputName", Label: "Output filename", Type: "text", Default: "info.md"},
			},
			Artifact: ArtifactSpec{FilenameFromInputKey: "outputName", MIME: "text/markdown"},
		},
		Build: buildSiteExtract,
	}
}

func buildSiteExtract(req Request) (Plan, error) {
	url, _ := req.Inputs["url"].(string)
	if strings.TrimSpace(url) == "" {
		return Plan{}, fmt.Errorf("%w: url is required", ErrValidation)
	}

	outputName := OutputName(req.Inputs["outputName"], "info.md", ".md")
	outputPath, err := req.Workspace.Path(outputName)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Argv:    []string{req.Interpreter, req.ScriptPath, "--url", url, "--output", outputPath},
		Dir:     filepath.Dir(req.ScriptPath),
		Collect: Collect{File: outputPath, MIME: "text/markdown"},
		Hints: []Hint{
			{Pattern: "No module named 'playwright'", Message: "Missing dependency: playwright (install it in WEBP/.venv, then install a browser)."},
		},
	}, nil
}

// OutputName reduces a caller-chosen filename to a safe bare name with
// the expected extension, falling back to def when nothing usable was
// provided. The permissive fallback matches the existing wire contract.
func OutputName(v any, def, ext string) string {
	name, _ := v.(string)
	name = workspace.SanitizeFilename(name)
	if name == "" {
		name = def
	}
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// clampInt coerces a JSON number (or numeric string) into [min, max],
// substituting def when the value is absent or unparseable.
func clampInt(v any, def, min, max int) int {
	n := def
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			n = parsed
		}
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

func boolInput(v any) bool {
	b, _ := v.(bool)
	return b
}
