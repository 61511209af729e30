package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "-", formatIDs(nil))
	assert.Equal(t, "-", formatIDs([]int64{}))
	assert.Equal(t, "7", formatIDs([]int64{7}))
	assert.Equal(t, "7,8,-3", formatIDs([]int64{7, 8, -3}))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"A", "LONG HEADER"}, [][]string{
		{"wide cell", "x"},
		{"y", "z"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)

	// Columns align: every line starts its second column at the same offset.
	assert.Equal(t, strings.Index(lines[0], "LONG HEADER"), strings.Index(lines[1], "x"))
}

func TestBuildLogHandler(t *testing.T) {
	var buf bytes.Buffer

	t.Run("json format", func(t *testing.T) {
		buf.Reset()

		h := buildLogHandler(&buf, "json", slog.LevelInfo)
		slog.New(h).Info("hello", "k", "v")

		assert.True(t, strings.HasPrefix(buf.String(), "{"))
	})

	t.Run("text format", func(t *testing.T) {
		buf.Reset()

		h := buildLogHandler(&buf, "text", slog.LevelInfo)
		slog.New(h).Info("hello", "k", "v")

		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("auto falls back to json for non-terminal writers", func(t *testing.T) {
		buf.Reset()

		h := buildLogHandler(&buf, "auto", slog.LevelInfo)
		slog.New(h).Info("hello")

		assert.True(t, strings.HasPrefix(buf.String(), "{"))
	})
}
