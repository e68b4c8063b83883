package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeReport(t *testing.T) {
	started := time.Date(2024, 1, 2, 9, 17, 0, 0, time.UTC)

	t.Run("successful cycle", func(t *testing.T) {
		r := NewCycleReport(started)
		r.CompletedAt = started.Add(2 * time.Minute)
		r.RunsFetched = append(r.RunsFetched, testRun)
		r.Inserted = [GroupCount]int{4, 4, 60, 4, 4}

		msg, err := SerializeReport(r)
		require.NoError(t, err)

		assert.Equal(t, []byte(r.CycleID), msg.Key)
		assert.Equal(t, "ok", msg.Headers["status"])
		assert.Equal(t, "2024-01-02T09:19:00Z", msg.Headers["completed_at"])

		var decoded CycleReport
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, r.CycleID, decoded.CycleID)
		assert.Equal(t, 76, decoded.TotalInserted())
		assert.Equal(t, []time.Time{testRun}, decoded.RunsFetched)
	})

	t.Run("failed cycle", func(t *testing.T) {
		r := NewCycleReport(started)
		r.Err = "persist data2: connection refused"

		msg, err := SerializeReport(r)
		require.NoError(t, err)
		assert.Equal(t, "failed", msg.Headers["status"])
	})

	t.Run("unique cycle ids", func(t *testing.T) {
		assert.NotEqual(t, NewCycleReport(started).CycleID, NewCycleReport(started).CycleID)
	})
}
