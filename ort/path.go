package ort

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ModelDirEnv is the environment variable with the model directory.
const ModelDirEnv = "NEURAL_MODEL_DIR"

// ErrModelNotFound is returned when model file cannot be resolved.
var ErrModelNotFound = errors.New("model not found")

// ResolveModelPath returns the path of model file. Absolute and existing
// relative paths are returned as is. Otherwise the file is looked up in
// ModelDirEnv directory and in Resources directory next to the executable
// directory.
func ResolveModelPath(model string) (string, error) {
	if model == "" {
		return "", fmt.Errorf("%w: empty model name", ErrModelNotFound)
	}
	if filepath.IsAbs(model) || exists(model) {
		return model, nil
	}
	var candidates []string
	if dir := os.Getenv(ModelDirEnv); dir != "" {
		candidates = append(candidates, filepath.Join(dir, model))
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(filepath.Dir(exe)), "Resources", model))
	}
	for _, path := range candidates {
		if exists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %v", ErrModelNotFound, model, candidates)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
