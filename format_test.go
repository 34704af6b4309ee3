package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * sizeMB, "5.0 MB"},
		{2 * sizeGB, "2.0 GB"},
		{3 * sizeTB, "3.0 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes), "bytes %d", tt.bytes)
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	sameYear := time.Date(now.Year(), 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, sameYear.Format("Jan _2 15:04"), formatTime(sameYear))

	otherYear := time.Date(now.Year()-2, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, otherYear.Format("Jan _2  2006"), formatTime(otherYear))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"report.pdf", "1.2 MB"},
		{"a", "5 B"},
	})

	want := "NAME        SIZE  \n" +
		"report.pdf  1.2 MB\n" +
		"a           5 B   \n"
	assert.Equal(t, want, buf.String())
}

func TestPrintTableEmptyRows(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME"}, nil)

	assert.Equal(t, "NAME\n", buf.String())
}
