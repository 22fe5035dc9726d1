package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	encoded := EncodeJobCursor(&storage.JobCursor{CreatedAt: createdAt, JobID: "a|b"})

	cursor, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "a|b", cursor.JobID)
	assert.True(t, createdAt.Equal(cursor.CreatedAt))
	assert.Equal(t, time.UTC, cursor.CreatedAt.Location())

	empty, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	invalid := []string{
		"!!!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("abc|job")),
		base64.RawURLEncoding.EncodeToString([]byte("123|")),
	}
	for _, in := range invalid {
		_, err := DecodeJobCursor(in)
		assert.Error(t, err, in)
	}
}
