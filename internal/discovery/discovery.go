// Package discovery lists invocable scripts under the exec root.
//
// The walk is best-effort by policy: unreadable directories or files
// are skipped, never fatal, so one bad entry cannot empty the listing.
package discovery

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScriptExt is the recognized script extension.
const ScriptExt = ".py"

// excludedDirNames prunes dependency and cache subtrees, plus the
// server's own directory, from the walk.
var excludedDirNames = map[string]bool{
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	"site-packages": true,
	"node_modules":  true,
	"tool_site":     true,
}

// Script describes one discovered script. Produced fresh per listing;
// nothing is cached.
type Script struct {
	RelPath     string `json:"relPath"`
	Name        string `json:"name"`
	Folder      string `json:"folder"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"displayName"`
}

// List walks root and returns every recognized script, ordered
// case-insensitively by relative path.
func List(root string) []Script {
	var scripts []Script

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (excludedDirNames[name] || strings.HasPrefix(name, ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ScriptExt) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = d.Name()
		}
		rel = filepath.ToSlash(rel)
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		scripts = append(scripts, Script{
			RelPath:     rel,
			Name:        stem,
			Folder:      filepath.ToSlash(filepath.Dir(rel)),
			Description: docSummary(path),
			DisplayName: TitleFromStem(stem),
		})
		return nil
	})

	sort.Slice(scripts, func(i, j int) bool {
		return strings.ToLower(scripts[i].RelPath) < strings.ToLower(scripts[j].RelPath)
	})
	return scripts
}

// TitleFromStem turns a filename stem into a display name.
func TitleFromStem(stem string) string {
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	words := strings.Fields(stem)
	if len(words) == 0 {
		return "Script"
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// docSummary returns the first line of a leading module docstring, or
// "" on any read or parse trouble.
func docSummary(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	inDoc := false
	var quote string
	for lineNo := 0; scanner.Scan() && lineNo < 50; lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if !inDoc {
			switch {
			case line == "" || strings.HasPrefix(line, "#"):
				continue
			case strings.HasPrefix(line, `"""`) || strings.HasPrefix(line, "'''"):
				quote = line[:3]
				rest := strings.TrimPrefix(line, quote)
				if end := strings.Index(rest, quote); end >= 0 {
					return strings.TrimSpace(rest[:end])
				}
				if rest = strings.TrimSpace(rest); rest != "" {
					return rest
				}
				inDoc = true
			default:
				// First statement is not a docstring.
				return ""
			}
			continue
		}
		closed := strings.Contains(line, quote)
		if end := strings.Index(line, quote); end >= 0 {
			line = line[:end]
		}
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		if closed {
			return ""
		}
	}
	return ""
}
