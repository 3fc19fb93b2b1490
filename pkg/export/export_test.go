package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(rows int) Dataset {
	data := Dataset{Title: "Students at risk", Subtitle: "threshold 60", Headers: []string{"student", "subject", "value"}}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{"student": "Ana", "subject": "Math", "value": "55.20"})
	}
	return data
}

func TestCSVExporterFollowsHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(2))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "student,subject,value", lines[0])
	assert.Equal(t, "Ana,Math,55.20", lines[1])
}

func TestPDFExporterPaginatesLongTables(t *testing.T) {
	exporter := NewPDFExporter()
	exporter.Widths = map[string]float64{"value": 30}
	out, err := exporter.Render(sampleDataset(80))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}
