package magicrows

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := "id,review\n1,great\n2,\"has, comma\"\n"

	tab, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "review"}, tab.Columns())
	require.Equal(t, 2, tab.Len())
	assert.Equal(t, "great", tab.Row(0)["review"])
	assert.Equal(t, "has, comma", tab.Row(1)["review"])
}

func TestReadCSVRaggedRows(t *testing.T) {
	in := "a,b,c\n1,2\n"

	tab, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "2", tab.Row(0)["b"])
	assert.Nil(t, tab.Row(0)["c"])
}

func TestReadTableFileTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.tsv")
	require.NoError(t, os.WriteFile(path, []byte("id\treview\n1\tgreat\n"), 0o644))

	tab, err := ReadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "review"}, tab.Columns())
	assert.Equal(t, "great", tab.Row(0)["review"])
}

func TestWriteCSVSpecialCells(t *testing.T) {
	tab := NewTable([]string{"a", "b", "c", "d"},
		Row{
			"a": "text",
			"b": Absent,
			"c": ErrorValue{Output: "c", Err: errors.New("boom")},
			"d": []any{"x", "y"},
		},
	)

	var buf bytes.Buffer
	require.NoError(t, tab.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "a,b,c,d", lines[0])
	assert.Equal(t, "text,,!error: boom,x; y", lines[1])
}

func TestWriteCSVNumbers(t *testing.T) {
	tab := NewTable([]string{"n"}, Row{"n": 4.5}, Row{"n": float64(7)})

	var buf bytes.Buffer
	require.NoError(t, tab.WriteCSV(&buf))
	assert.Equal(t, "n\n4.5\n7\n", buf.String())
}

func TestHead(t *testing.T) {
	tab := NewTable([]string{"a"}, Row{"a": "1"}, Row{"a": "2"}, Row{"a": "3"})

	assert.Equal(t, 2, tab.Head(2).Len())
	assert.Equal(t, 3, tab.Head(10).Len())
}
