package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Title: "Roster MATH-101",
		Columns: []Column{
			{Key: "student", Label: "Student"},
			{Key: "average", Label: "Average", Align: "R"},
			{Key: "status", Label: "Status"},
		},
		Rows: []map[string]string{
			{"student": "stu-1", "average": "4.05", "status": "PASSING"},
			{"student": "stu-2", "average": "", "status": "PENDING"},
		},
		Footer: []string{"Pass rate: 50.00%"},
	}
}

func TestCSVExporterRendersColumnsInOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Student,Average,Status", lines[0])
	assert.Equal(t, "stu-1,4.05,PASSING", lines[1])
	assert.Equal(t, "stu-2,,PENDING", lines[2])
	assert.Equal(t, "Pass rate: 50.00%", lines[3])
}

func TestExportersRejectEmptyColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}
