package main

import (
	"bytes"
	"testing"
	"time"

	"boringexpenses/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthRange(t *testing.T) {
	start, end, err := monthRange("2024-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = monthRange("12/2024")
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	expenses := []models.Expense{
		{Date: day, Description: "Train", Amount: decimal.RequireFromString("40.10"), Currency: "GBP"},
		{Date: day, Description: "Hotel", Amount: decimal.RequireFromString("1200"), Currency: "EUR"},
		{Date: day, Description: "Taxi", Amount: decimal.RequireFromString("9.90"), Currency: "GBP"},
	}
	var buf bytes.Buffer
	writeReport(&buf, "eve@example.com", "2025-03", expenses, true)
	out := buf.String()
	assert.Contains(t, out, "records=3")
	assert.Contains(t, out, "total EUR €1,200.00")
	assert.Contains(t, out, "total GBP £50.00")
	assert.Contains(t, out, "|Taxi|-")
}
