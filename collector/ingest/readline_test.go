// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package ingest

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	// a buffer smaller than the lines forces the ErrBufferFull path
	reader := bufio.NewReaderSize(strings.NewReader(
		"short\n"+
			strings.Repeat("a", 100)+"\n"+
			strings.Repeat("b", 5000)+"\n"+
			"after\n",
	), 16)

	line, err := readLine(reader, 1000)
	require.NoError(t, err)
	assert.Equal(t, "short\n", string(line))

	line, err = readLine(reader, 1000)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 100)+"\n", string(line))

	// the oversized line is consumed, not just rejected
	_, err = readLine(reader, 1000)
	require.ErrorIs(t, err, errLineTooLong)

	line, err = readLine(reader, 1000)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(line))

	_, err = readLine(reader, 1000)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadLineFinalWithoutNewline(t *testing.T) {
	reader := bufio.NewReaderSize(strings.NewReader("partial"), 16)

	line, err := readLine(reader, 1000)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(line))

	_, err = readLine(reader, 1000)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadLineExactLimit(t *testing.T) {
	reader := bufio.NewReaderSize(strings.NewReader("abcd\nabcde\n"), 16)

	// the newline byte counts toward the limit
	line, err := readLine(reader, 5)
	require.NoError(t, err)
	assert.Equal(t, "abcd\n", string(line))

	_, err = readLine(reader, 5)
	require.ErrorIs(t, err, errLineTooLong)
}
