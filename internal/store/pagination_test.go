package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := OrderCursor{
		OrderDate: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		ID:        1234,
	}

	encoded := EncodeCursor(cursor)
	assert.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	assert.NoError(t, err)
	assert.True(t, decoded.OrderDate.Equal(cursor.OrderDate))
	assert.Equal(t, cursor.ID, decoded.ID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	decoded, err := DecodeCursor("")
	assert.NoError(t, err)

	// The empty cursor starts ahead of every existing order.
	assert.Equal(t, int64(1<<63-1), decoded.ID)
	assert.WithinDuration(t, time.Now(), decoded.OrderDate, time.Minute)
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, err := DecodeCursor("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeCursor("bm90IGpzb24=")
	assert.Error(t, err)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 20))
	assert.Equal(t, 1, totalPages(1, 20))
	assert.Equal(t, 1, totalPages(20, 20))
	assert.Equal(t, 2, totalPages(21, 20))
	assert.Equal(t, 5, totalPages(100, 20))
}
