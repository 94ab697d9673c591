package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/growfi/growfi-server/internal/layout"
	"github.com/growfi/growfi-server/internal/model"
	"github.com/growfi/growfi-server/internal/portfolio"
)

func TestPrintGrid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printGrid(&buf, layout.DefaultTopology, layout.Generate(layout.DefaultSeed), layout.DefaultSeed))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "seed 123456\n"))
	assert.Equal(t, 4, strings.Count(out, "Tower "))
	assert.Equal(t, 4, strings.Count(out, "  L8 "))
	assert.Contains(t, out, "A B C D E F")
	assert.Contains(t, out, "available ")
}

func TestLayoutCommandJSON(t *testing.T) {
	cmd := newLayoutCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--seed", "42"})
	outputFlag = "json"
	t.Cleanup(func() { outputFlag = "table" })

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "["))
	assert.Contains(t, buf.String(), `"id": "T1-L1-A"`)
}

func TestExportXLSX(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sum := portfolio.Summarize([]model.OwnershipRecord{
		{FarmID: "farm-1", FarmName: "Fresh", PlotID: "T1-L1-A", Crop: "Kale", PricePaidXRP: 12.5, EstimatedYieldKg: 1.5, PurchasedAt: now.Add(-48 * time.Hour)},
	}, now)
	path := filepath.Join(t.TempDir(), "portfolio.xlsx")
	require.NoError(t, exportXLSX(path, sum))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Holdings", "Farms"}, f.GetSheetList())

	v, err := f.GetCellValue("Holdings", "B2")
	require.NoError(t, err)
	assert.Equal(t, "T1-L1-A", v)
	v, err = f.GetCellValue("Farms", "C3")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
