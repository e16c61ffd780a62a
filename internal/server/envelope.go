package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/stratonally/toolhost/internal/artifact"
	"github.com/stratonally/toolhost/internal/catalog"
	"github.com/stratonally/toolhost/internal/discovery"
	"github.com/stratonally/toolhost/internal/runner"
	"github.com/stratonally/toolhost/internal/workspace"
)

// Wire types. Field names are the contract existing callers depend on.

type toolRunRequest struct {
	ToolRelPath string          `json:"toolRelPath"`
	Inputs      json.RawMessage `json:"inputs"`
	Files       json.RawMessage `json:"files"`
}

type scriptRunRequest struct {
	ScriptRelPath string `json:"scriptRelPath"`
	Args          string `json:"args"`
}

type artifactPayload struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	Base64   string `json:"base64"`
}

type runEnvelope struct {
	Cmd        []string          `json:"cmd"`
	Cwd        string            `json:"cwd"`
	ReturnCode *int              `json:"returnCode"`
	DurationMs int64             `json:"durationMs"`
	Stdout     string            `json:"stdout"`
	Stderr     string            `json:"stderr"`
	Error      string            `json:"error,omitempty"`
	Artifacts  []artifactPayload `json:"artifacts"`
}

type scriptPayload struct {
	RelPath     string      `json:"relPath"`
	Name        string      `json:"name"`
	Folder      string      `json:"folder"`
	Description string      `json:"description,omitempty"`
	DisplayName string      `json:"displayName"`
	Summary     string      `json:"summary,omitempty"`
	UI          *catalog.UI `json:"ui,omitempty"`
}

func envelopeFromResult(res runner.Result) runEnvelope {
	return runEnvelope{
		Cmd:        res.Cmd,
		Cwd:        res.Dir,
		ReturnCode: res.ExitCode,
		DurationMs: res.Duration.Milliseconds(),
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Error:      res.Err,
		Artifacts:  []artifactPayload{},
	}
}

func (e *runEnvelope) attach(arts ...artifact.Artifact) {
	for _, a := range arts {
		e.Artifacts = append(e.Artifacts, artifactPayload{
			Filename: a.Filename,
			Mime:     a.MIME,
			Base64:   base64.StdEncoding.EncodeToString(a.Content),
		})
	}
}

func scriptListing(scripts []discovery.Script, cat *catalog.Catalog) []scriptPayload {
	out := make([]scriptPayload, 0, len(scripts))
	for _, s := range scripts {
		entry := scriptPayload{
			RelPath:     s.RelPath,
			Name:        s.Name,
			Folder:      s.Folder,
			Description: s.Description,
			DisplayName: s.DisplayName,
		}
		if tool, ok := cat.Describe(s.RelPath); ok {
			entry.DisplayName = tool.DisplayName
			entry.Summary = tool.Summary
			ui := tool.UI
			entry.UI = &ui
		}
		out = append(out, entry)
	}
	return out
}

// decodeFiles normalizes the files payload: each field key maps to one
// record or a list of records; null entries are skipped.
func decodeFiles(raw json.RawMessage) (map[string][]workspace.FileUpload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("files must be an object")
	}
	out := make(map[string][]workspace.FileUpload, len(byKey))
	for key, entry := range byKey {
		if len(entry) == 0 || string(entry) == "null" {
			continue
		}
		var many []workspace.FileUpload
		if err := json.Unmarshal(entry, &many); err == nil {
			out[key] = many
			continue
		}
		var one workspace.FileUpload
		if err := json.Unmarshal(entry, &one); err != nil {
			return nil, fmt.Errorf("files.%s must be a file record or a list", key)
		}
		out[key] = []workspace.FileUpload{one}
	}
	return out, nil
}

// decodeInputs parses the inputs payload, which must be a JSON object
// when present.
func decodeInputs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var inputs map[string]any
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("inputs must be an object")
	}
	return inputs, nil
}
