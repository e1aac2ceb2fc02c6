package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that did not load, did not run,
// or did not pass.
type ScenarioFailure struct {
	Name         string `json:"name,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool { return r.Failed == 0 }

// FindScenarios returns the scenario files under path. A file is returned
// as is; a directory is searched recursively for .yaml and .yml files.
// Results are sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario file in paths.
//
// For each file:
// 1. Load the scenario
// 2. Run it via harness.Run
// 3. Collect and report results
func RunSuite(paths []string) *SuiteResult {
	result := &SuiteResult{}

	for _, scenarioPath := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(scenarioPath)
		if err != nil {
			result.fail(ScenarioFailure{
				ScenarioPath: scenarioPath,
				Error:        fmt.Sprintf("failed to load scenario: %v", err),
			})
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.fail(ScenarioFailure{
				Name:         scenario.Name,
				ScenarioPath: scenarioPath,
				Error:        fmt.Sprintf("scenario execution failed: %v", err),
			})
			continue
		}

		if !runResult.Pass {
			result.fail(ScenarioFailure{
				Name:         scenario.Name,
				ScenarioPath: scenarioPath,
				Error:        fmt.Sprintf("scenario assertions failed: %v", runResult.Errors),
			})
			continue
		}

		result.Passed++
	}

	return result
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
