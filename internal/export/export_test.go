package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"imagemeta/internal/domain"
)

var sample = []domain.FileRecord{
	{
		DisplayName: "boat.jpg",
		Path:        "/photos/boat.jpg",
		Title:       `Boat, "red"`,
		Keywords:    []string{"boat", "harbour"},
		Description: "A red boat.\nSecond line.",
		Status:      domain.RecordStatusCompleted,
	},
	{
		Path:   "/photos/broken.png",
		Status: domain.RecordStatusError,
	},
}

func TestWriteCSVKeepsValuesVerbatim(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"boat.jpg", "/photos/boat.jpg", `Boat, "red"`, "boat, harbour", "A red boat.\nSecond line.", "completed"}, rows[1])
	assert.Equal(t, []string{"broken.png", "/photos/broken.png", "", "", "", "error"}, rows[2])
}

func TestWriteXLSXProducesSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "boat, harbour", rows[1][3])
	assert.Equal(t, "completed", rows[1][5])
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatFromPath("out.XLSX"))
	assert.Equal(t, FormatCSV, FormatFromPath("out.csv"))
	assert.Equal(t, FormatCSV, FormatFromPath("out"))
	assert.Error(t, Write(&bytes.Buffer{}, Format("pdf"), nil))
}
