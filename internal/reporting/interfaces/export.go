package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reporting "marketplace-settlement/internal/reporting/domain"
)

// BuildRevenuePDF renders a vendor revenue report as PDF.
func BuildRevenuePDF(report reporting.VendorRevenue) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Vendor Revenue Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Vendor: %s", report.VendorID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", report.Period.From.Format(time.DateOnly), report.Period.To.Format(time.DateOnly)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sub-orders: %d", report.SubOrders))
	pdf.Ln(9)

	summary := [][2]string{
		{"Gross released", report.GrossReleased.StringFixed(2)},
		{"Installer payouts", report.InstallerPayouts.StringFixed(2)},
		{"Vendor released", report.VendorReleased.StringFixed(2)},
		{fmt.Sprintf("Commission (%s%%)", report.CommissionRate.Shift(2).String()), report.Commission.StringFixed(2)},
		{"Net payout", report.NetPayout.StringFixed(2)},
	}
	for _, row := range summary {
		pdf.CellFormat(60, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%s %s", row[1], report.Currency), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Released", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Sub-order", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Recipient", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range report.Releases {
		pdf.CellFormat(35, 6, r.ReleasedAt.Format(time.DateOnly), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, r.SubOrderID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, r.RecipientType, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, r.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRevenueXLSX renders a vendor revenue report as a workbook with a
// summary sheet and one row per release.
func BuildRevenueXLSX(report reporting.VendorRevenue) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	releasesSheet := "releases"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(releasesSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Vendor", report.VendorID},
		{"From", report.Period.From.Format(time.DateOnly)},
		{"To", report.Period.To.Format(time.DateOnly)},
		{"Currency", report.Currency},
		{"Sub-orders", report.SubOrders},
		{"Gross released", report.GrossReleased.InexactFloat64()},
		{"Installer payouts", report.InstallerPayouts.InexactFloat64()},
		{"Vendor released", report.VendorReleased.InexactFloat64()},
		{"Commission rate", report.CommissionRate.InexactFloat64()},
		{"Commission", report.Commission.InexactFloat64()},
		{"Net payout", report.NetPayout.InexactFloat64()},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Vendor Revenue Report")
	for i, row := range summary {
		line := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), row[1])
	}

	headers := []string{"Released At", "Sub-order", "Account", "Recipient Type", "Recipient", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(releasesSheet, cell, h)
	}
	for i, r := range report.Releases {
		row := i + 2
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("A%d", row), r.ReleasedAt.Format(time.RFC3339))
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("B%d", row), r.SubOrderID)
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("C%d", row), r.AccountID)
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("D%d", row), r.RecipientType)
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("E%d", row), r.RecipientID)
		_ = f.SetCellValue(releasesSheet, fmt.Sprintf("F%d", row), r.Amount.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
