package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/cloudbuilder/internal/logger"
)

// ProjectFileName is the per-project settings file.
const ProjectFileName = ".cloudbuilder.json"

// projectYAMLNames are read when no JSON project file exists.
var projectYAMLNames = []string{".cloudbuilder.yaml", ".cloudbuilder.yml"}

// loadProject reads the project file in dir. A missing, unusable or
// unsubstituted directory yields no layer; a malformed file is logged
// and ignored so that the environment still applies.
func loadProject(dir string, log *logger.Logger) (*Config, error) {
	if dir == "" {
		log.Debug().Msg("PROJECT_PATH not set, using environment only")
		return nil, nil
	}
	if strings.Contains(dir, "${") || strings.Contains(dir, "$(") {
		log.Info().Str("project_path", dir).Msg("PROJECT_PATH contains an unsubstituted placeholder, ignoring it")
		return nil, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("error resolving project path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		log.Warn().Str("project_path", abs).Msg("PROJECT_PATH is not a directory, ignoring it")
		return nil, nil
	}

	path, decode := findProjectFile(abs)
	if path == "" {
		log.Info().Str("project_path", abs).Msg("No project file found, using environment")
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to read project file, ignoring it")
		return nil, nil
	}

	cfg := &Config{}
	if err := decode(data, cfg); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Malformed project file, ignoring it")
		return nil, nil
	}
	cfg.ProjectPath = abs

	log.Info().Str("file", path).Msg("Loaded project file")
	return cfg, nil
}

type decodeFunc func([]byte, *Config) error

func findProjectFile(dir string) (string, decodeFunc) {
	path := filepath.Join(dir, ProjectFileName)
	if exists(path) {
		return path, func(data []byte, cfg *Config) error {
			return json.Unmarshal(data, cfg)
		}
	}
	for _, name := range projectYAMLNames {
		path := filepath.Join(dir, name)
		if exists(path) {
			return path, func(data []byte, cfg *Config) error {
				return yaml.Unmarshal(data, cfg)
			}
		}
	}
	return "", nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
