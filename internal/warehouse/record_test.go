package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveNullableHeaders(t *testing.T) {
	subject := "hello"
	rec := &EmailRecord{
		ID:             "m1",
		ThreadID:       "t1",
		Subject:        &subject,
		CombinedLabels: "INBOX,SENT",
	}

	row, insertID, err := rec.Save()
	require.NoError(t, err)
	assert.Empty(t, insertID)
	assert.Equal(t, "m1", row["id"])
	assert.Equal(t, "hello", row["subject"])
	assert.Nil(t, row["sender"], "absent header maps to a NULL column")
	assert.Nil(t, row["timestamp"])
	assert.Equal(t, "INBOX,SENT", row["combined_labels"])
}
