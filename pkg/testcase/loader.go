package testcase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Loader loads test cases from YAML files.
type Loader struct {
	// basePath is the base directory for resolving relative paths
	basePath string
}

// NewLoader creates a new test case loader.
// basePath is used to resolve relative test case file paths.
// If basePath is empty, the current working directory is used.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{
		basePath: basePath,
	}
}

// Load loads a test case from a YAML file.
// The path can be absolute or relative to the loader's basePath.
func (l *Loader) Load(path string) (*TestCase, error) {
	resolvedPath, err := l.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve test case path: %w", err)
	}

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read test case file %s: %w", resolvedPath, err)
	}

	tc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resolvedPath, err)
	}
	tc.File = resolvedPath

	return tc, nil
}

// Parse decodes and validates a test case.
func Parse(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := Validate(&tc); err != nil {
		return nil, fmt.Errorf("test case validation failed: %w", err)
	}

	return &tc, nil
}

// LoadMultiple loads multiple test cases from YAML files.
// Returns all successfully loaded test cases and any errors encountered.
func (l *Loader) LoadMultiple(paths []string) ([]*TestCase, []error) {
	cases := make([]*TestCase, 0, len(paths))
	var errs []error

	for _, path := range paths {
		tc, err := l.Load(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load %s: %w", path, err))
			continue
		}
		cases = append(cases, tc)
	}

	return cases, errs
}

// LoadDir loads every *.yaml and *.yml file of a directory, sorted by name.
func (l *Loader) LoadDir(dir string) ([]*TestCase, []error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(l.basePath, dir)
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, []error{fmt.Errorf("failed to list %s: %w", dir, err)}
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, []error{fmt.Errorf("no test case files found in %s", dir)}
	}
	sort.Strings(paths)

	return l.LoadMultiple(paths)
}

// resolvePath resolves a file path relative to the loader's basePath.
func (l *Loader) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}

	resolvedPath := filepath.Join(l.basePath, path)

	if _, err := os.Stat(resolvedPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("test case file does not exist: %s", resolvedPath)
		}
		return "", fmt.Errorf("failed to stat test case file %s: %w", resolvedPath, err)
	}

	return resolvedPath, nil
}

// DefaultTestCasePath returns the default path for test case files.
func DefaultTestCasePath() string {
	return "test/cases"
}
