package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/shlex"

	"github.com/stratonally/toolhost/internal/artifact"
	"github.com/stratonally/toolhost/internal/catalog"
	"github.com/stratonally/toolhost/internal/discovery"
	"github.com/stratonally/toolhost/internal/observability"
	"github.com/stratonally/toolhost/internal/runner"
	"github.com/stratonally/toolhost/internal/workspace"
)

func (s *Server) handleListScripts(c *gin.Context) {
	scripts := discovery.List(s.cfg.ExecRoot)
	c.JSON(http.StatusOK, gin.H{
		"root":    s.cfg.ExecRoot,
		"scripts": scriptListing(scripts, s.catalog),
	})
}

func (s *Server) handleRunTool(c *gin.Context) {
	timeout := s.clampTimeout(c.Query("timeout"))

	var body toolRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	toolID := strings.TrimSpace(body.ToolRelPath)
	if toolID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "toolRelPath is required"})
		return
	}
	inputs, err := decodeInputs(body.Inputs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files, err := decodeFiles(body.Files)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tool, ok := s.catalog.Describe(toolID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tool"})
		return
	}
	scriptPath, status, resolveErr := s.resolveScript(tool.ID, false)
	if resolveErr != "" {
		c.JSON(status, gin.H{"error": resolveErr})
		return
	}

	ws, err := workspace.New(s.workspaceBase)
	if err != nil {
		s.logger.Error().Err(err).Msg("workspace create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer func() {
		if err := ws.Close(); err != nil {
			s.logger.Error().Err(err).Str("workspace", ws.Root()).Msg("workspace teardown failed")
		}
	}()

	staged, stagedBytes, err := ws.Stage(files, s.cfg.Limits.MaxUploadBytes)
	observability.RecordStagedBytes(stagedBytes)
	if err != nil {
		observability.RecordInvocation(tool.ID, "rejected", 0)
		if errors.Is(err, workspace.ErrUploadTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := tool.Build(catalog.Request{
		Inputs:      inputs,
		Staged:      staged,
		Workspace:   ws,
		ScriptPath:  scriptPath,
		Interpreter: s.interpreterFor(scriptPath),
	})
	if err != nil {
		if errors.Is(err, catalog.ErrValidation) {
			observability.RecordInvocation(tool.ID, "rejected", 0)
			c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
			return
		}
		observability.RecordInvocation(tool.ID, "error", 0)
		s.logger.Error().Err(err).Str("tool", tool.ID).Msg("command build failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	res, err := s.runner.Run(c.Request.Context(), plan.Argv, plan.Dir, timeout)
	if err != nil {
		observability.RecordInvocation(tool.ID, "error", 0)
		s.logger.Error().Err(err).Str("tool", tool.ID).Msg("subprocess failed to run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	env := envelopeFromResult(res)
	if res.ExitCode != nil && *res.ExitCode != 0 {
		for _, hint := range plan.Hints {
			if strings.Contains(res.Stderr, hint.Pattern) {
				env.Error = hint.Message
				break
			}
		}
	}

	switch {
	case plan.Collect.Dir != "":
		archived, err := artifact.ArchiveDir(plan.Collect.Dir, plan.Collect.Name)
		if err != nil {
			observability.RecordInvocation(tool.ID, "error", res.Duration)
			s.logger.Error().Err(err).Str("tool", tool.ID).Msg("artifact archive failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		env.attach(archived)
	case plan.Collect.File != "":
		collected, err := artifact.CollectFile(plan.Collect.File, plan.Collect.MIME)
		if err != nil {
			observability.RecordInvocation(tool.ID, "error", res.Duration)
			s.logger.Error().Err(err).Str("tool", tool.ID).Msg("artifact collect failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		env.attach(collected...)
	}

	observability.RecordInvocation(tool.ID, outcomeOf(res), res.Duration)
	c.JSON(http.StatusOK, env)
}

func (s *Server) handleRunScript(c *gin.Context) {
	timeout := s.clampTimeout(c.Query("timeout"))

	var body scriptRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	rel := strings.TrimSpace(body.ScriptRelPath)
	if rel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scriptRelPath is required"})
		return
	}

	scriptPath, status, resolveErr := s.resolveScript(rel, true)
	if resolveErr != "" {
		c.JSON(status, gin.H{"error": resolveErr})
		return
	}

	args, err := shlex.Split(body.Args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not parse args"})
		return
	}

	argv := append([]string{s.interpreterFor(scriptPath), scriptPath}, args...)
	res, err := s.runner.Run(c.Request.Context(), argv, filepath.Dir(scriptPath), timeout)
	if err != nil {
		observability.RecordInvocation("raw", "error", 0)
		s.logger.Error().Err(err).Str("script", rel).Msg("subprocess failed to run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observability.RecordInvocation("raw", outcomeOf(res), res.Duration)
	c.JSON(http.StatusOK, envelopeFromResult(res))
}

// resolveScript turns a relative script reference into an absolute path
// under the exec root. Anything resolving outside the root is treated as
// adversarial input, not a server error.
func (s *Server) resolveScript(rel string, rawMode bool) (path string, status int, errMsg string) {
	if filepath.IsAbs(filepath.FromSlash(rel)) {
		return "", http.StatusBadRequest, "Invalid script path"
	}
	abs := filepath.Join(s.cfg.ExecRoot, filepath.FromSlash(rel))
	if !workspace.WithinRoot(abs, s.cfg.ExecRoot) {
		return "", http.StatusBadRequest, "Invalid script path"
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", http.StatusNotFound, "Script not found"
	}
	if rawMode {
		if !info.Mode().IsRegular() || !strings.EqualFold(filepath.Ext(abs), discovery.ScriptExt) {
			return "", http.StatusNotFound, "Script not found"
		}
	}
	return abs, 0, ""
}

// interpreterFor picks the interpreter: configured override first, then
// a .venv next to the script, then whatever PATH offers.
func (s *Server) interpreterFor(scriptPath string) string {
	if s.cfg.Interpreter != "" {
		return s.cfg.Interpreter
	}
	return pythonForScript(scriptPath)
}

// clampTimeout parses the timeout query parameter and bounds it to the
// configured range; anything unparseable takes the default.
func (s *Server) clampTimeout(raw string) time.Duration {
	seconds := s.cfg.Limits.DefaultTimeoutSec
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			seconds = parsed
		}
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > s.cfg.Limits.MaxTimeoutSec {
		seconds = s.cfg.Limits.MaxTimeoutSec
	}
	return time.Duration(seconds) * time.Second
}

func outcomeOf(res runner.Result) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.ExitCode != nil && *res.ExitCode == 0:
		return "ok"
	default:
		return "failed"
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	prefix := catalog.ErrValidation.Error() + ": "
	return strings.TrimPrefix(msg, prefix)
}
