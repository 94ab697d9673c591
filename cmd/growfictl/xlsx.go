package main

import (
	"github.com/xuri/excelize/v2"

	"github.com/growfi/growfi-server/internal/portfolio"
)

// exportXLSX writes a Holdings sheet and a Farms sheet.
func exportXLSX(path string, sum portfolio.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	const holdings, farms = "Holdings", "Farms"
	if err := f.SetSheetName("Sheet1", holdings); err != nil {
		return err
	}
	if _, err := f.NewSheet(farms); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	rows := [][]any{{"Farm", "Plot", "Crop", "Price (XRP)", "Yield (kg)", "Stage", "Progress (%)", "Days", "Purchased", "Holder", "Tx", "Simulated"}}
	for _, h := range sum.Holdings {
		rows = append(rows, []any{
			h.FarmName, h.PlotID, h.Crop, h.PricePaidXRP, h.EstimatedYieldKg, string(h.Stage),
			h.Progress, h.DaysElapsed, h.PurchasedAt.UTC().Format("2006-01-02 15:04"), h.Holder, h.TxRef, h.Simulated,
		})
	}
	if err := writeRows(f, holdings, rows, bold); err != nil {
		return err
	}

	rows = [][]any{{"Farm ID", "Farm", "Plots", "Invested (XRP)", "Yield (kg)"}}
	for _, ft := range sum.Farms {
		rows = append(rows, []any{ft.FarmID, ft.FarmName, ft.Plots, ft.InvestedXRP, ft.YieldKg})
	}
	rows = append(rows, []any{"", "Total", sum.TotalPlots, sum.TotalInvestedXRP, sum.EstimatedYieldKg})
	if err := writeRows(f, farms, rows, bold); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 16)
}
