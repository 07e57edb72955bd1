package report

import (
	"path/filepath"
	"testing"
	"time"

	"tillsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleOrders() []models.QueuedOrder {
	return []models.QueuedOrder{
		{
			LocalID:       "local-a",
			ServerID:      "srv-a",
			Items:         []models.OrderItem{{ProductID: "p1", Name: "Bratwurst", Quantity: 2, UnitCents: 600}},
			TotalCents:    1200,
			PaymentMethod: models.PaymentCash,
			Status:        models.StatusSynced,
			AttemptCount:  1,
			CreatedAt:     time.Date(2026, 8, 29, 18, 30, 0, 0, time.UTC),
		},
		{
			LocalID:       "local-b",
			Items:         []models.OrderItem{{ProductID: "p2", Name: "Raclette", Quantity: 1, UnitCents: 900}},
			TotalCents:    0,
			PaymentMethod: models.PaymentCash,
			GratisInfo:    &models.GratisInfo{Type: models.GratisStaff},
			Status:        models.StatusFailed,
			AttemptCount:  5,
			LastError:     "backend unavailable",
			CreatedAt:     time.Date(2026, 8, 29, 19, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteOrdersReport(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteOrdersReport(dir, sampleOrders())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per order")

	assert.Equal(t, "Local ID", rows[0][0])
	assert.Equal(t, "Total CHF", rows[0][8])

	assert.Equal(t, "local-a", rows[1][0])
	assert.Equal(t, "srv-a", rows[1][1])
	assert.Equal(t, "synced", rows[1][3])
	assert.Equal(t, "12", rows[1][8])

	assert.Equal(t, "local-b", rows[2][0])
	assert.Equal(t, "staff", rows[2][6])
	assert.Equal(t, "backend unavailable", rows[2][9])
}

func TestWriteOrdersReportEmptyQueue(t *testing.T) {
	path, err := WriteOrdersReport(t.TempDir(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}

func TestWriteOrdersReportCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")

	path, err := WriteOrdersReport(dir, sampleOrders())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}
