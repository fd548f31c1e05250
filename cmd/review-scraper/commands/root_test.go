package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "serve")
}

func TestRunRequiresInput(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "-i", "jobs.json", "-f", "pdf"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTPUT_FORMAT")
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "-i", "jobs.json", "--config", "/nonexistent/config.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file")
}

func TestRunMockServesJobsOffline(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		env   map[string]string
	}{
		{
			name:  "mock flag",
			input: `{"asins": ["B086K4ZMT3", "B000000001"], "domainCode": "co.uk", "maxPages": 2}`,
			args:  []string{"--mock"},
		},
		{
			name:  "mock transport from env",
			input: `{"asins": ["B086K4ZMT3", "B000000001"], "domainCode": "de", "maxPages": 2}`,
			env:   map[string]string{"SCRAPER_TRANSPORT": "mock"},
		},
		{
			name:  "mock key per job",
			input: `{"asins": ["B086K4ZMT3", "B000000001"], "domainCode": "com", "maxPages": 2, "mock": true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "error")
			t.Setenv("SCRAPER_RATE_LIMIT", "100")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			jobsPath := filepath.Join(dir, "jobs.json")
			require.NoError(t, os.WriteFile(jobsPath, []byte(tt.input), 0o644))
			outDir := filepath.Join(dir, "out")

			var stdout bytes.Buffer
			root := NewRootCmd()
			root.SetOut(&stdout)
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(append([]string{"run", "-i", jobsPath, "-f", "json", "-o", outDir}, tt.args...))
			require.NoError(t, root.Execute())

			path := strings.TrimSpace(stdout.String())
			assert.Equal(t, outDir, filepath.Dir(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var records []models.ResultRecord
			require.NoError(t, json.Unmarshal(data, &records))

			require.Len(t, records, 2)
			assert.Equal(t, "B086K4ZMT3", records[0].ASIN)
			assert.Equal(t, "B000000001", records[1].ASIN)
			for _, r := range records {
				assert.Equal(t, "FOUND", r.StatusMessage)
				assert.Equal(t, 200, r.StatusCode)
				assert.Equal(t, "Mock Product for "+r.ASIN, r.ProductTitle)
				assert.NotEmpty(t, r.Reviews)
				assert.LessOrEqual(t, r.CurrentPage, 2)
			}
		})
	}
}
