// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// ProjectConfig is the leapmetrics.yaml written by SetupTestProject.
// Three CSV tables form the chain sales -> campaigns -> partners.
const ProjectConfig = `metrics:
  - name: revenue
    aggregation: sum
    rounding: 2
datasources:
  files:
    tables:
      partners:
        type: dimension
        primary_key: [partner_id]
        data_url: data/partners.csv
      campaigns:
        type: dimension
        primary_key: [campaign_id]
        data_url: data/campaigns.csv
      sales:
        type: metric
        primary_key: [sale_id]
        data_url: data/sales.csv
        columns:
          revenue:
            fields: [revenue]
`

var projectFiles = map[string]string{
	"partners.csv":  "partner_id,partner_name\n1,Acme\n2,Globex\n",
	"campaigns.csv": "campaign_id,partner_id,campaign_name\n10,1,Spring\n11,2,Fall\n",
	"sales.csv":     "sale_id,campaign_id,revenue\n100,10,12.5\n101,11,7.25\n",
}

// SetupTestProject creates a temporary project with CSV-backed tables and
// returns the path of its config file.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dataDir, err)
	}
	for name, body := range projectFiles {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(body), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	path := filepath.Join(tmpDir, "leapmetrics.yaml")
	if err := os.WriteFile(path, []byte(ProjectConfig), 0644); err != nil {
		t.Fatalf("failed to create leapmetrics.yaml: %v", err)
	}
	return path
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
