/*
Package factory provides JSON to Go funding mapping conversion.

PURPOSE:
  Converts a JSON funding mapping into a budget.FundingMapping, the table
  the coverage check uses to decide which financing category a declared
  funding type pays into. Deployments can change the table without a
  rebuild by pointing FUNDING_MAPPING_FILE at a file.

JSON SCHEMA:
  {
    "STATE_BUDGET": "STATE_BUDGET_SHORT",
    "OWN_RESOURCES": "OWN_RESOURCES_SHORT",
    "TECHNICAL_PARTNER": "OTHER",
    "DONATIONS": "OTHER",
    "PERFORMANCE_BASED_FINANCING": "PBF",
    "UNIVERSAL_HEALTH_COVERAGE": "UHC"
  }

  Keys are funding types, values are financing categories. Both must be
  known enum values. Types left out count toward no category unless their
  name is itself a category.

USAGE:
  mapping, err := factory.LoadFundingMapping(cfg.FundingMappingFile)
  engine.Coverage = budget.NewCoverageValidator(mapping)

SEE ALSO:
  - budget/coverage.go: FundingMapping and the coverage check
  - config/config.go: FUNDING_MAPPING_FILE
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/warp/paa-engine/budget"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FundingMappingJSON is the JSON representation of a funding mapping.
type FundingMappingJSON map[string]string

// =============================================================================
// FUNDING MAPPING FACTORY
// =============================================================================

// LoadFundingMapping reads and parses the mapping file at path.
func LoadFundingMapping(path string) (budget.FundingMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read funding mapping: %w", err)
	}
	return ParseFundingMapping(data)
}

// ParseFundingMapping parses JSON into a budget.FundingMapping.
func ParseFundingMapping(data []byte) (budget.FundingMapping, error) {
	var mj FundingMappingJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return nil, fmt.Errorf("failed to parse funding mapping JSON: %w", err)
	}
	return FromJSON(mj)
}

// FromJSON validates every entry and converts it.
func FromJSON(mj FundingMappingJSON) (budget.FundingMapping, error) {
	if len(mj) == 0 {
		return nil, fmt.Errorf("funding mapping is empty")
	}

	keys := make([]string, 0, len(mj))
	for k := range mj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	mapping := make(budget.FundingMapping, len(mj))
	for _, k := range keys {
		ft := budget.FundingType(k)
		category := budget.FinancingCategory(mj[k])
		if !ft.Valid() {
			problems = append(problems, fmt.Sprintf("unknown funding type %q", k))
			continue
		}
		if !category.Valid() {
			problems = append(problems, fmt.Sprintf("unknown financing category %q for %s", mj[k], k))
			continue
		}
		mapping[ft] = category
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid funding mapping: %s", strings.Join(problems, "; "))
	}
	return mapping, nil
}
