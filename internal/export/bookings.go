// Package export renders bookings into spreadsheets for admins.
package export

import (
	"fmt"
	"io"

	"marketplace/internal/models"
	"marketplace/internal/presenter"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

var headers = []string{
	"ID", "Date", "Start", "End", "Service", "Customer", "Provider",
	"Status", "Payment", "Method", "Amount", "Urgent", "Notes", "Cancellation reason",
}

// FileName builds the attachment name for a date range; empty bounds mean open-ended.
func FileName(from, to string) string {
	if from == "" {
		from = "start"
	}
	if to == "" {
		to = "now"
	}
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from, to)
}

// WriteBookings writes one row per booking as an XLSX workbook.
func WriteBookings(w io.Writer, bookings []*models.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.ID,
			b.Date,
			b.StartTime,
			b.EndTime,
			b.ServiceTitle,
			b.CustomerName,
			b.ProviderName,
			presenter.Label(b.Status),
			presenter.PaymentLabel(b.PaymentStatus),
			string(b.PaymentMethod),
			b.TotalAmount.StringFixed(2),
			yesNo(b.Urgent),
			b.Notes,
			b.CancellationReason,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write booking %s: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "D", 12)
	_ = f.SetColWidth(SheetName, "E", "G", 24)
	_ = f.SetColWidth(SheetName, "H", "L", 16)
	_ = f.SetColWidth(SheetName, "M", "N", 40)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
