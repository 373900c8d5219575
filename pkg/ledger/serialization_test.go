package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToJob(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		job, err := HashToJob(map[string]string{
			"key":                  "k",
			"external_id":          "HIT",
			"expected_assignments": "4",
			"reset_generation":     "9",
		})
		require.NoError(t, err)
		assert.Equal(t, 4, job.ExpectedAssignments)
		require.NotNil(t, job.ResetGeneration)
		assert.Equal(t, 9, *job.ResetGeneration)
	})

	t.Run("corrupt expected_assignments", func(t *testing.T) {
		_, err := HashToJob(map[string]string{"key": "k", "expected_assignments": "many"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected_assignments")
	})

	t.Run("corrupt reset_generation", func(t *testing.T) {
		_, err := HashToJob(map[string]string{"key": "k", "expected_assignments": "1", "reset_generation": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reset_generation")
	})
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "tally:sandbox:job:abc", JobKey("sandbox", "abc"))
	assert.Equal(t, "tally:sandbox:job:*", JobKeyPattern("sandbox"))
}
