package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleAdapterGeneratesUniqueJobs(t *testing.T) {
	adapter := NewWellfoundAdapter(true, nil)

	jobs, err := adapter.FetchJobs(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, jobs, 25)

	fingerprints := make(map[string]struct{})
	for _, j := range jobs {
		assert.NotEmpty(t, j.Title)
		assert.NotEmpty(t, j.Company)
		assert.NotEmpty(t, j.SourceID)
		assert.Equal(t, "wellfound", j.SourceName)
		require.NotNil(t, j.SalaryMin)
		require.NotNil(t, j.SalaryMax)
		fingerprints[j.Fingerprint()] = struct{}{}
	}
	assert.Len(t, fingerprints, 25, "sample source ids keep fingerprints unique")
}

func TestSampleAdaptersDoNotShareIDSpace(t *testing.T) {
	wellfound := NewWellfoundAdapter(true, nil)
	otta := NewOttaAdapter(true, nil)

	a, err := wellfound.FetchJobs(context.Background(), 10)
	require.NoError(t, err)
	b, err := otta.FetchJobs(context.Background(), 10)
	require.NoError(t, err)

	ids := make(map[string]struct{})
	for _, j := range a {
		ids[j.SourceID] = struct{}{}
	}
	for _, j := range b {
		_, clash := ids[j.SourceID]
		assert.False(t, clash, "id bases must not overlap")
	}
}

func TestDisabledSampleAdapter(t *testing.T) {
	adapter := NewOttaAdapter(false, nil)
	assert.False(t, adapter.Enabled())
}
