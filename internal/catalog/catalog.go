// Package catalog declares the fixed set of guided tools: their input
// schemas (advisory, for UI rendering) and the command strategies that
// turn validated inputs into concrete argument lists.
package catalog

import (
	"errors"
	"fmt"
)

// ErrValidation marks request-shape problems a caller can fix; the
// router maps it to a client error.
var ErrValidation = errors.New("invalid tool request")

// Input is one schema entry of a tool's guided form.
type Input struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, url, number, boolean, file, files
	Required bool     `json:"required,omitempty"`
	Accept   []string `json:"accept,omitempty"`
	Multiple bool     `json:"multiple,omitempty"`
	Min      *int     `json:"min,omitempty"`
	Max      *int     `json:"max,omitempty"`
	Default  any      `json:"value,omitempty"`
}

// ArtifactSpec declares how a tool names its artifact: a fixed filename
// or one derived from a request input.
type ArtifactSpec struct {
	Filename             string `json:"filename,omitempty"`
	FilenameFromInputKey string `json:"filenameFromInputKey,omitempty"`
	MIME                 string `json:"mime"`
}

// UI is the caller-facing description of a guided tool.
type UI struct {
	Mode     string       `json:"mode"`
	Inputs   []Input      `json:"inputs"`
	Artifact ArtifactSpec `json:"artifact"`
}

// Hint rewrites a known stderr pattern into a clearer error message.
type Hint struct {
	Pattern string
	Message string
}

// Collect tells the router how to gather artifacts after the run.
// Exactly one of File or Dir is set.
type Collect struct {
	File string // expected single output file (absolute)
	MIME string
	Dir  string // output directory to archive (absolute)
	Name string // archive filename when Dir is set
}

// Request carries everything a strategy needs: validated inputs, staged
// upload paths grouped by field key, the workspace root, the resolved
// script path and the interpreter to run it with.
type Request struct {
	Inputs      map[string]any
	Staged      map[string][]string
	Workspace   WorkspaceFS
	ScriptPath  string
	Interpreter string
}

// WorkspaceFS is the slice of the workspace API strategies use.
type WorkspaceFS interface {
	Root() string
	Path(elem ...string) (string, error)
	Mkdir(name string) (string, error)
}

// Plan is a strategy's output: the argv to run, its working directory,
// the artifact collection rule and failure-message hints.
type Plan struct {
	Argv    []string
	Dir     string
	Collect Collect
	Hints   []Hint
}

// Strategy builds a Plan from a validated request. Pure apart from
// workspace staging moves; every strategy is independently testable.
type Strategy func(req Request) (Plan, error)

// Tool is one immutable catalog entry.
type Tool struct {
	ID          string
	DisplayName string
	Summary     string
	UI          UI
	Build       Strategy
}

// Catalog is the fixed tool registry, built once at process start and
// never mutated.
type Catalog struct {
	tools map[string]Tool
	order []string
}

// New builds a catalog from the given tools, preserving order for
// deterministic listings.
func New(tools ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if _, dup := c.tools[tool.ID]; dup {
			panic(fmt.Sprintf("catalog: duplicate tool id %q", tool.ID))
		}
		c.tools[tool.ID] = tool
		c.order = append(c.order, tool.ID)
	}
	return c
}

// Describe looks a tool up by exact identifier.
func (c *Catalog) Describe(id string) (Tool, bool) {
	tool, ok := c.tools[id]
	return tool, ok
}

// IDs returns tool identifiers in registration order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}
