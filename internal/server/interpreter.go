package server

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// pythonForScript honors the deployed convention of a virtualenv living
// next to each script; without one, the system interpreter is used.
func pythonForScript(scriptPath string) string {
	venvDir := filepath.Join(filepath.Dir(scriptPath), ".venv")
	var candidate string
	if runtime.GOOS == "windows" {
		candidate = filepath.Join(venvDir, "Scripts", "python.exe")
	} else {
		candidate = filepath.Join(venvDir, "bin", "python")
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "python3"
}
