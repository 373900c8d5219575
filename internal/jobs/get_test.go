package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/tally/pkg/ledger"
)

func TestFind(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, append(sampleJobs(),
		&ledger.Job{Key: "aabbff", ExternalID: "HIT-D", ExpectedAssignments: 1})...)

	t.Run("full key", func(t *testing.T) {
		job, err := Find(ctx, store, "ccdd0011223344556677")
		require.NoError(t, err)
		assert.Equal(t, "HIT-B", job.ExternalID)
	})

	t.Run("unique prefix", func(t *testing.T) {
		job, err := Find(ctx, store, "ffee")
		require.NoError(t, err)
		assert.Equal(t, "HIT-C", job.ExternalID)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := Find(ctx, store, "aabb")
		assert.ErrorIs(t, err, ErrAmbiguousKey)
	})

	t.Run("exact key wins over longer matches", func(t *testing.T) {
		job, err := Find(ctx, store, "aabbff")
		require.NoError(t, err)
		assert.Equal(t, "HIT-D", job.ExternalID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Find(ctx, store, "0000")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "job with key '0000' not found", err.Error())
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := Find(ctx, store, "")
		assert.Error(t, err)
		assert.False(t, IsNotFound(err))
	})
}

func TestGetJob(t *testing.T) {
	store := setupStore(t, sampleJobs()...)

	var buf bytes.Buffer
	require.NoError(t, GetJob(context.Background(), store, "aabb", &buf))

	var job ledger.Job
	require.NoError(t, json.Unmarshal(buf.Bytes(), &job))
	assert.Equal(t, "HIT-A", job.ExternalID)
	assert.Contains(t, buf.String(), "\n  \"external_id\"")
}
