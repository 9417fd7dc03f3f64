package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
)

func WriteBundle(path string, b *Bundle) error {
	return writePrettyJSON(path, b)
}

func WriteManifest(path string, m *Manifest) error {
	return writePrettyJSON(path, m)
}

func writePrettyJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
