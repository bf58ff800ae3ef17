package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Filter is a glob matched against scenario file base names without
	// their extension. Empty matches everything.
	Filter string

	// Update rewrites golden files instead of comparing against them.
	Update bool

	// Options are passed to every Run.
	Options []Option
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated", "missing"
	Errors []string `json:"errors,omitempty"`
	Result *Result  `json:"-"`
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// Golden comparison states.
const (
	GoldenMatch   = "match"
	GoldenUpdated = "updated"
	GoldenMissing = "missing"
)

// FindScenarios lists the YAML scenario files under dir, in lexical order.
// Files in golden/ directories are skipped.
func FindScenarios(dir, filter string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenarios directory not found: %s", dir)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// RunSuite runs every scenario under dir.
//
// For each scenario file:
//  1. Load and run it
//  2. With Update, write its golden file
//  3. Otherwise compare against its golden file when one exists
//
// A scenario passes when its run matched every expectation and its golden
// file, if any, matched.
func RunSuite(ctx context.Context, dir string, opts SuiteOptions) (*SuiteResult, error) {
	files, err := FindScenarios(dir, opts.Filter)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, path := range files {
		outcome := runScenarioFile(ctx, path, opts)
		suite.Scenarios = append(suite.Scenarios, outcome)
		suite.Total++
		if outcome.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	return suite, nil
}

func runScenarioFile(ctx context.Context, path string, opts SuiteOptions) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: filepath.Base(path), Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return outcome
	}
	outcome.Name = scenario.Name

	result, err := Run(ctx, scenario, opts.Options...)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return outcome
	}
	outcome.Result = result
	outcome.Errors = result.Errors

	if opts.Update {
		if err := UpdateGolden(path, scenario.Name, result); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return outcome
		}
		outcome.Golden = GoldenUpdated
		outcome.Pass = result.Pass
		return outcome
	}

	match, err := CompareGolden(path, scenario.Name, result)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		outcome.Golden = GoldenMissing
	case err != nil:
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		return outcome
	case !match:
		outcome.Errors = append(outcome.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		return outcome
	default:
		outcome.Golden = GoldenMatch
	}

	outcome.Pass = result.Pass
	return outcome
}
