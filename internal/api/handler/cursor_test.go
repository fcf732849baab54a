package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPostCursor(t *testing.T) {
	in := &storage.JobPostCursor{
		CreatedAt: time.Date(2025, time.April, 2, 10, 30, 0, 123456789, time.UTC),
		ID:        "6f1c1f4e-8f53-4a53-9d55-0b7f6d1d2a10",
	}

	out, err := DecodeJobPostCursor(EncodeJobPostCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeJobPostCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "***"},
		{"no separator", base64.URLEncoding.EncodeToString([]byte("12345"))},
		{"empty id", base64.URLEncoding.EncodeToString([]byte("12345|"))},
		{"bad timestamp", base64.URLEncoding.EncodeToString([]byte("yesterday|abc"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobPostCursor(tt.cursor)
			assert.Error(t, err)
		})
	}

	c, err := DecodeJobPostCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}
