package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// stemAndExt splits "telemetry.json5" into ("telemetry", "json5") so
// the local-override sibling name can be derived.
func stemAndExt(base string) (string, string) {
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i], base[i+1:]
		}
	}
	return base, ""
}

func readLayer[T any](path string, out *T) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	return true, json5.Unmarshal(data, out)
}

// ReadConfig loads a json5 config plus an optional local override next
// to it: for "telemetry.json5" the override is "telemetry.local.json5".
// Override fields win, which keeps cookie values and otlp endpoints out
// of the checked-in defaults. When neither file exists the error is
// os.ErrNotExist.
func ReadConfig[T any](name string) (T, error) {
	var out T

	dir := filepath.Dir(name)
	stem, ext := stemAndExt(filepath.Base(name))
	localName := filepath.Join(dir, fmt.Sprintf("%s.local.%s", stem, ext))

	found, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	var override T
	foundLocal, err := readLayer(localName, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localName)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadConfig, except it walks up from the working directory to the
// filesystem root looking for the named file. Scraper runs start in
// arbitrary output directories while the configs live at the repo root.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	root, err := filepath.Abs("/")
	if err != nil {
		return zero, err
	}
	dir, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for dir != root {
		config, err := ReadConfig[T](filepath.Join(dir, name))
		if os.IsNotExist(err) {
			dir = filepath.Join(dir, "..")
			continue
		}
		if err != nil {
			return zero, err
		}
		return config, nil
	}
	return zero, os.ErrNotExist
}
