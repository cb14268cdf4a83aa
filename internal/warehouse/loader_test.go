package warehouse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	batches [][]*EmailRecord
	failOn  map[int]bool // batch index -> fail
}

func (f *fakePutter) Put(ctx context.Context, src any) error {
	idx := len(f.batches)
	f.batches = append(f.batches, src.([]*EmailRecord))
	if f.failOn[idx] {
		return errors.New("insert rejected")
	}
	return nil
}

func makeRecords(n int) []*EmailRecord {
	records := make([]*EmailRecord, n)
	for i := range records {
		records[i] = &EmailRecord{ID: fmt.Sprintf("m%d", i)}
	}
	return records
}

func TestLoadBatchSizeBound(t *testing.T) {
	cases := []struct {
		length, max, batches, last int
	}{
		{10, 3, 4, 1},
		{9, 3, 3, 3},
		{1, 1000, 1, 1},
		{1000, 1000, 1, 1000},
		{1001, 1000, 2, 1},
	}

	for _, tc := range cases {
		putter := &fakePutter{}
		loader := NewLoader(putter, tc.max)
		loader.pause = 0

		n := loader.Load(context.Background(), makeRecords(tc.length))
		assert.Equal(t, tc.length, n)
		require.Len(t, putter.batches, tc.batches, "length %d max %d", tc.length, tc.max)
		for _, b := range putter.batches {
			assert.LessOrEqual(t, len(b), tc.max)
		}
		assert.Len(t, putter.batches[len(putter.batches)-1], tc.last)
	}
}

func TestLoadPreservesOrder(t *testing.T) {
	putter := &fakePutter{}
	loader := NewLoader(putter, 4)
	loader.pause = 0

	loader.Load(context.Background(), makeRecords(10))

	var ids []string
	for _, b := range putter.batches {
		for _, r := range b {
			ids = append(ids, r.ID)
		}
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"}, ids)
}

func TestLoadBatchFailureIsContained(t *testing.T) {
	putter := &fakePutter{failOn: map[int]bool{1: true}}
	loader := NewLoader(putter, 3)
	loader.pause = 0

	n := loader.Load(context.Background(), makeRecords(9))

	// Batch 1 (3 rows) rejected; batches 0 and 2 still load.
	assert.Equal(t, 6, n)
	assert.Len(t, putter.batches, 3)
}

func TestLoadEmptyInput(t *testing.T) {
	putter := &fakePutter{}
	loader := NewLoader(putter, 10)

	assert.Equal(t, 0, loader.Load(context.Background(), nil))
	assert.Empty(t, putter.batches)
}
