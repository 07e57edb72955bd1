package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tillsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Orders"

var headers = []string{
	"Local ID", "Server ID", "Created", "Status", "Attempts",
	"Payment", "Gratis", "Items", "Total CHF", "Last Error",
}

// WriteOrdersReport exports the current queue to an xlsx file for end-of-day
// reconciliation. Gratis orders keep their reason tag so reporting can split
// comps out of revenue. Returns the path of the written file.
func WriteOrdersReport(dir string, orders []models.QueuedOrder) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheetName, "A1", "J1", headerStyle)

	for i, o := range orders {
		row := i + 2
		gratis := ""
		if o.GratisInfo != nil {
			gratis = o.GratisInfo.Type
		}
		itemCount := 0
		for _, item := range o.Items {
			itemCount += item.Quantity
		}
		values := []any{
			o.LocalID,
			o.ServerID,
			o.CreatedAt.Format("02.01.2006 15:04:05"),
			string(o.Status),
			o.AttemptCount,
			string(o.PaymentMethod),
			gratis,
			itemCount,
			float64(o.TotalCents) / 100,
			o.LastError,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 38)
	_ = f.SetColWidth(sheetName, "C", "J", 18)

	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
