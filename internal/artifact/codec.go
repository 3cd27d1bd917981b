package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/chatshape/internal/failure"
)

// Encode renders an artifact as indented JSON with a trailing newline.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFile writes data to path, creating parent directories. Artifacts are
// write-once: an existing path is a CONFIGURATION_ERROR and is left intact.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return failure.Configuration("artifact already exists; artifacts are never overwritten", path)
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	return nil
}

// WriteJSON encodes v and writes it with WriteFile.
func WriteJSON(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFile(path, data)
}

// ReadJSON decodes the artifact at path into v. Missing or malformed files
// are CONFIGURATION_ERRORs.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure.Configuration(fmt.Sprintf("cannot read artifact: %v", err), path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return failure.Configuration(fmt.Sprintf("malformed artifact: %v", err), path)
	}
	return nil
}

// ReadShape loads ShapeMetrics and checks the version and privacy tag.
func ReadShape(path string) (*ShapeMetrics, error) {
	var m ShapeMetrics
	if err := ReadJSON(path, &m); err != nil {
		return nil, err
	}
	if m.Version != Version {
		return nil, failure.Configuration("unsupported shape metrics version", fmt.Sprint(m.Version))
	}
	if m.PrivacyLevel != PrivacyLevel {
		return nil, failure.Configuration("shape metrics privacy level must be "+PrivacyLevel, m.PrivacyLevel)
	}
	return &m, nil
}

// ReadSpec loads a distribution spec and validates it against the schema.
func ReadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Configuration(fmt.Sprintf("cannot read spec: %v", err), path)
	}
	if err := validateSpecJSON(data); err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) {
			return nil, fe.WithReport(path)
		}
		return nil, err
	}
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, failure.Configuration(fmt.Sprintf("malformed spec: %v", err), path)
	}
	return &s, nil
}
