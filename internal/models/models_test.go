package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobConfigNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        JobConfig
		wantPages int
		wantSort  string
	}{
		{"defaults", JobConfig{ASIN: "b086k4zmt3", DomainCode: " CO.UK "}, 10, SortRecent},
		{"clamped to ceiling", JobConfig{ASIN: "B086K4ZMT3", DomainCode: "de", MaxPages: 25}, 10, SortRecent},
		{"explicit", JobConfig{ASIN: "B086K4ZMT3", DomainCode: "de", MaxPages: 3, SortStrategy: "Helpful"}, 3, SortHelpful},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantPages, got.MaxPages)
			assert.Equal(t, tt.wantSort, got.SortStrategy)
			assert.Equal(t, "B086K4ZMT3", got.ASIN)
		})
	}
}

func TestJobConfigPageLimit(t *testing.T) {
	assert.Equal(t, 10, JobConfig{}.PageLimit())
	assert.Equal(t, 1, JobConfig{MaxPages: 1}.PageLimit())
	assert.Equal(t, 10, JobConfig{MaxPages: 99}.PageLimit())
}

func TestJobConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     JobConfig
		wantErr string
	}{
		{name: "valid", job: JobConfig{ASIN: "B086K4ZMT3", DomainCode: "com", SortStrategy: "recent"}},
		{name: "missing asin", job: JobConfig{DomainCode: "com"}, wantErr: "ASIN is required"},
		{name: "short asin", job: JobConfig{ASIN: "B08", DomainCode: "com"}, wantErr: "ASIN must be 10 characters"},
		{name: "bad sort", job: JobConfig{ASIN: "B086K4ZMT3", DomainCode: "com", SortStrategy: "oldest"}, wantErr: "SortStrategy must be one of"},
		{name: "negative pages", job: JobConfig{ASIN: "B086K4ZMT3", DomainCode: "com", MaxPages: -1}, wantErr: "MaxPages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidJob)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMediaListJSON(t *testing.T) {
	absent, err := json.Marshal(MediaList{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(absent))

	empty, err := json.Marshal(MediaList{Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	var decoded MediaList
	require.NoError(t, json.Unmarshal([]byte(`[]`), &decoded))
	assert.True(t, decoded.Valid)
	assert.Empty(t, decoded.URLs)

	require.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
	assert.False(t, decoded.Valid)

	assert.False(t, NewMediaList(nil).Valid)
	assert.True(t, NewMediaList([]string{"https://m.media-amazon.com/a.jpg"}).Valid)
}

func TestReviewSummaryPercentages(t *testing.T) {
	var s ReviewSummary
	s.SetPercentages([5]int{87, 8, 3, 1, 1})
	assert.Equal(t, 87, s.FiveStar.Percentage)
	assert.Equal(t, 1, s.OneStar.Percentage)
	assert.Equal(t, 100, s.Total())
}
