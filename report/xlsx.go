// Package report renders inventory views as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/warp/lot-ledger/inventory"
	"github.com/xuri/excelize/v2"
)

const (
	StockSheet = "Stock"
	LotsSheet  = "Lots"

	// ContentType is the MIME type of the workbook WriteStockWorkbook produces.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	stockHeadings = []string{"Product", "Available", "Threshold", "Purchase price", "Sale price", "Status"}
	lotHeadings   = []string{"Product", "Lot", "Remaining", "Initial", "Expiry", "Days to expiry", "Supplier", "Status"}
)

// WriteStockWorkbook writes a two-sheet workbook: stock levels per product
// and the lot ledger with expiry status.
func WriteStockWorkbook(w io.Writer, levels []inventory.StockLevel, lots []inventory.LotView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", StockSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(LotsSheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	stockRows := make([][]any, 0, len(levels))
	for _, l := range levels {
		stockRows = append(stockRows, []any{
			l.Product,
			l.Available,
			l.Threshold,
			l.PurchasePrice.InexactFloat64(),
			l.SalePrice.InexactFloat64(),
			string(l.Status),
		})
	}
	if err := writeSheet(f, StockSheet, headerStyle, stockHeadings, stockRows); err != nil {
		return err
	}

	lotRows := make([][]any, 0, len(lots))
	for _, l := range lots {
		var expiry, days any = "", ""
		if l.HasExpiry {
			expiry = l.Expiry.String()
			days = l.DaysToExpiry
		}
		lotRows = append(lotRows, []any{
			l.Product,
			l.LotNumber,
			l.Remaining,
			l.Initial,
			expiry,
			days,
			l.Supplier,
			string(l.ExpiryStatus),
		})
	}
	if err := writeSheet(f, LotsSheet, headerStyle, lotHeadings, lotRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, headings []string, rows [][]any) error {
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}

// Filename names a report generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("stock-%s.xlsx", t.UTC().Format("20060102-150405"))
}
