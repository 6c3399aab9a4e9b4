package activity_test

import (
	"bytes"
	"encoding/csv"
	"guardpost/activity"
	"guardpost/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	entries := []models.ActivityLogEntry{
		{
			UserID:     "g1",
			UserName:   "Grace, Jr.",
			UserEmail:  "grace@example.com",
			UserRole:   models.RoleGuard,
			Action:     "end_shift",
			Category:   models.CategoryShift,
			DeviceType: "mobile",
			IPAddress:  "203.0.113.7",
			UserAgent:  "Mozilla/5.0",
			Details:    map[string]interface{}{"duration": "8h 0m"},
			LocationData: &models.LocationResult{
				Source:    models.SourceGPS,
				Latitude:  models.Float(6.5244),
				Longitude: models.Float(3.3792),
				Accuracy:  models.Float(12.4),
				City:      "Lagos",
				Country:   "Nigeria",
			},
			Timestamp: ts,
		},
		{
			Action:       "login_failed",
			Category:     models.CategoryAuthentication,
			LocationData: &models.LocationResult{Error: "Unable to determine location"},
			Timestamp:    ts,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, activity.WriteCSV(&buf, entries))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, activity.ExportHeader, rows[0])
	for _, row := range rows {
		assert.Len(t, row, len(activity.ExportHeader))
	}

	first := rows[1]
	assert.Equal(t, "2024-03-04T17:00:00Z", first[0])
	assert.Equal(t, "Grace, Jr.", first[2])
	assert.Equal(t, "gps", first[10])
	assert.Equal(t, "6.524400", first[11])
	assert.Equal(t, "3.379200", first[12])
	assert.Equal(t, "12", first[13])
	assert.Equal(t, "Lagos", first[15])
	assert.Equal(t, `{"duration":"8h 0m"}`, first[18])

	second := rows[2]
	assert.Empty(t, second[1])
	assert.Empty(t, second[11])
	assert.Equal(t, "Unable to determine location", second[17])
	assert.Empty(t, second[18])
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, activity.WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
