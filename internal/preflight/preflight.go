package preflight

import (
	"imagebit/internal/config"
	"imagebit/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks relevant to a run from inputDir to outputDir.
// Empty directory arguments skip the corresponding check.
func RunAll(cfg *config.Config, inputDir, outputDir string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckEncoder(cfg.Encoder.Binary)}
	results = append(results, CheckWritableDir("State directory", cfg.Paths.StateDir))
	if inputDir != "" {
		results = append(results, CheckReadableDir("Input directory", inputDir))
	}
	if outputDir != "" {
		results = append(results, CheckWritableDir("Output directory", outputDir))
	}
	return results
}

// FirstFailure returns the first failed result, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

// CheckEncoder verifies the encoder binary resolves and is executable.
func CheckEncoder(binary string) Result {
	const name = "Encoder"
	status := deps.CheckBinaries([]deps.Requirement{deps.EncoderRequirement(binary)})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	if err := accessExec(status.Path); err != nil {
		return Result{Name: name, Detail: status.Path + " (error: not executable: " + err.Error() + ")"}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}
