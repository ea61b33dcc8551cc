package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ScenarioNotFoundError is returned when a scenario path matches no file.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files found at %s", e.Path)
}

// FindScenarios returns the scenario files named by path: the file itself,
// or every .yaml and .yml file directly inside a directory, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	sort.Strings(files)
	return files, nil
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`

	// Results holds each scenario's result by name, for traces.
	Results map[string]*Result `json:"-"`
}

// SuiteFailure represents a scenario that failed to load, run or pass.
type SuiteFailure struct {
	Scenario     string   `json:"scenario,omitempty"`
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario file in paths.
//
// For each path:
// 1. Load the scenario
// 2. Run it via harness.Run
// 3. Collect and report results
func RunSuite(paths []string) *SuiteResult {
	result := &SuiteResult{Results: make(map[string]*Result, len(paths))}

	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(SuiteFailure{ScenarioPath: path, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}})
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.fail(SuiteFailure{Scenario: scenario.Name, ScenarioPath: path, Errors: []string{fmt.Sprintf("scenario execution failed: %v", err)}})
			continue
		}
		result.Results[scenario.Name] = runResult

		if !runResult.Pass {
			result.fail(SuiteFailure{Scenario: scenario.Name, ScenarioPath: path, Errors: runResult.Errors})
			continue
		}

		result.Passed++
	}

	return result
}

func (r *SuiteResult) fail(f SuiteFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
