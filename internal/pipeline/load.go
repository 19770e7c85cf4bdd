package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// Load reads a pipeline artifact. SQLite model packs are detected by their
// file header; anything else is decoded as a JSON definition.
func Load(path string) (*Pipeline, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ArtifactNotFoundError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &ArtifactNotFoundError{Path: path, Err: fmt.Errorf("%s is a directory", path)}
	}

	def, err := readDefinition(path)
	if err != nil {
		return nil, err
	}

	p, err := Build(def)
	if err != nil {
		return nil, corrupt(path, "unexpected pipeline structure", err)
	}
	return p, nil
}

func readDefinition(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactNotFoundError{Path: path, Err: err}
	}
	defer f.Close()

	head := make([]byte, len(sqliteHeader))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, corrupt(path, "cannot read artifact", err)
	}

	if n == len(sqliteHeader) && bytes.Equal(head, sqliteHeader) {
		f.Close()
		return loadModelPack(path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, corrupt(path, "cannot read artifact", err)
	}
	def, err := DecodeDefinition(f)
	if err != nil {
		return nil, corrupt(path, "cannot decode definition", err)
	}
	return def, nil
}

// Save writes a pipeline definition. Paths ending in .json are written as
// indented JSON, anything else as a SQLite model pack.
func Save(path string, def *Definition) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal definition: %w", err)
		}
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write definition: %w", err)
		}
		return nil
	}
	return SaveModelPack(path, def)
}
