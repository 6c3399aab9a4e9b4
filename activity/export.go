package activity

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"guardpost/models"
	"io"
	"strconv"
	"time"
)

// ExportHeader is the column order of the CSV export.
var ExportHeader = []string{
	"Timestamp",
	"User ID",
	"User Name",
	"User Email",
	"User Role",
	"Action",
	"Category",
	"Device Type",
	"IP Address",
	"User Agent",
	"Location Source",
	"Latitude",
	"Longitude",
	"Accuracy (m)",
	"Address",
	"City",
	"Country",
	"Location Error",
	"Details",
}

// WriteCSV writes one row per entry with the location decomposed into columns.
func WriteCSV(w io.Writer, entries []models.ActivityLogEntry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range entries {
		if err := writer.Write(exportRow(&entries[i])); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func exportRow(e *models.ActivityLogEntry) []string {
	details := ""
	if len(e.Details) > 0 {
		if data, err := json.Marshal(e.Details); err == nil {
			details = string(data)
		}
	}

	row := []string{
		e.Timestamp.Format(time.RFC3339),
		e.UserID,
		e.UserName,
		e.UserEmail,
		string(e.UserRole),
		e.Action,
		string(e.Category),
		e.DeviceType,
		e.IPAddress,
		e.UserAgent,
	}

	loc := e.LocationData
	if loc == nil {
		loc = &models.LocationResult{}
	}
	row = append(row,
		string(loc.Source),
		formatFloat(loc.Latitude, 6),
		formatFloat(loc.Longitude, 6),
		formatFloat(loc.Accuracy, 0),
		loc.Address,
		loc.City,
		loc.Country,
		loc.Error,
		details,
	)
	return row
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
