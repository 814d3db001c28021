// Package costs scans an out_dir for sidecar JSON files and sums their
// cost_usd fields, independent of and advisory to the run manifest. Ported
// from original_source's cost_tracking.rs.
package costs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// sidecarData is the subset of persistence.Sidecar this package reads.
type sidecarData struct {
	RunID    string  `json:"run_id"`
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	CostUSD  float64 `json:"cost_usd"`
}

// RunCost aggregates spend for a single run_id.
type RunCost struct {
	RunID      string `json:"run_id"`
	Cost       float64 `json:"cost"`
	ImageCount uint64 `json:"image_count"`
}

// ProviderCost aggregates spend for a single provider/model pair.
type ProviderCost struct {
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Cost       float64 `json:"cost"`
	ImageCount uint64  `json:"image_count"`
}

// Summary is the aggregate result of scanning an out_dir.
type Summary struct {
	TotalCost       float64        `json:"total_cost"`
	ImageCount      uint64         `json:"image_count"`
	AvgCostPerImage float64        `json:"avg_cost_per_image"`
	Runs            []RunCost      `json:"runs"`
	ByProvider      []ProviderCost `json:"by_provider"`
}

// ComputeSummary scans every *.json file directly under outDir, treating
// each as a sidecar record. Files that are not valid sidecar JSON (for
// example a stray config file) are silently skipped rather than failing the
// whole scan, matching the original implementation's best-effort scan.
func ComputeSummary(outDir string) (Summary, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return Summary{}, err
	}

	var total float64
	var count uint64
	runTotals := make(map[string]*RunCost)
	providerTotals := make(map[string]*ProviderCost)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var sc sidecarData
		if err := json.Unmarshal(data, &sc); err != nil {
			continue
		}
		if sc.RunID == "" && sc.Provider == "" {
			continue // not a sidecar file
		}

		total += sc.CostUSD
		count++

		rc, ok := runTotals[sc.RunID]
		if !ok {
			rc = &RunCost{RunID: sc.RunID}
			runTotals[sc.RunID] = rc
		}
		rc.Cost += sc.CostUSD
		rc.ImageCount++

		key := sc.Provider + "\x1f" + sc.Model
		pc, ok := providerTotals[key]
		if !ok {
			pc = &ProviderCost{Provider: sc.Provider, Model: sc.Model}
			providerTotals[key] = pc
		}
		pc.Cost += sc.CostUSD
		pc.ImageCount++
	}

	runs := make([]RunCost, 0, len(runTotals))
	for _, rc := range runTotals {
		runs = append(runs, *rc)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID > runs[j].RunID })

	providers := make([]ProviderCost, 0, len(providerTotals))
	for _, pc := range providerTotals {
		providers = append(providers, *pc)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Cost > providers[j].Cost })

	var avg float64
	if count > 0 {
		avg = total / float64(count)
	}

	return Summary{
		TotalCost:       total,
		ImageCount:      count,
		AvgCostPerImage: avg,
		Runs:            runs,
		ByProvider:      providers,
	}, nil
}

// EstimateCost returns the projected spend for targetImages at
// priceUSDPerImage, used to warn against budget_limit_usd before a run
// starts.
func EstimateCost(targetImages uint64, priceUSDPerImage float64) float64 {
	return float64(targetImages) * priceUSDPerImage
}
