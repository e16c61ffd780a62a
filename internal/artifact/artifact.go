// Package artifact gathers tool outputs after a run: a single expected
// file, or a whole directory archived into one zip.
package artifact

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Artifact is one produced file, content held in memory and re-encoded
// for transport when the response envelope is built.
type Artifact struct {
	Filename string
	MIME     string
	Content  []byte
}

// CollectFile packages path as a single artifact. A missing file is not
// an error: the run result already conveys the script's failure, so the
// caller simply gets zero artifacts.
func CollectFile(path, declaredMIME string) ([]Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	name := filepath.Base(path)
	return []Artifact{{
		Filename: name,
		MIME:     GuessMIME(name, raw, declaredMIME),
		Content:  raw,
	}}, nil
}

// ArchiveDir zips every regular file under dir into one in-memory
// archive with forward-slash entry paths relative to dir. An empty
// directory yields a valid empty archive so the response shape stays
// uniform.
func ArchiveDir(dir, archiveName string) (Artifact, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return err
	})
	if err != nil {
		zw.Close()
		return Artifact{}, fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return Artifact{}, fmt.Errorf("finalize archive: %w", err)
	}

	return Artifact{
		Filename: archiveName,
		MIME:     "application/zip",
		Content:  buf.Bytes(),
	}, nil
}

// GuessMIME resolves a MIME type: declared value first, then the
// filename extension, then a content sniff, finally octet-stream.
func GuessMIME(filename string, content []byte, declared string) string {
	if declared != "" {
		return declared
	}
	if ext := filepath.Ext(filename); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	if len(content) > 0 {
		if mt := mimetype.Detect(content); mt != nil {
			return mt.String()
		}
	}
	return "application/octet-stream"
}
