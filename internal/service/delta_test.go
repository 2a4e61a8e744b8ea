package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ledger-sync/internal/types"
	"github.com/stretchr/testify/assert"
)

func recordsFromIDs(ids []int) []types.Record {
	records := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, types.Record{"id": id, "account_id": "A"})
	}
	return records
}

func TestDelta(t *testing.T) {
	previous := []types.Record{{"id": 1, "amount": -55.54}}
	current := []types.Record{{"id": 1, "amount": -55.54}, {"id": 2, "amount": 10.0}}

	assert.Equal(t, []types.Record{{"id": 2, "amount": 10.0}}, Delta(previous, current))
}

func TestDelta_StructuralEquality(t *testing.T) {
	previous := []types.Record{{"id": 1, "memo": "COFFEE"}}
	current := []types.Record{{"id": 1, "memo": "COFFEE SHOP"}}

	// An updated memo is a different record.
	assert.Len(t, Delta(previous, current), 1)

	// Integer and float encodings of the same number are equal.
	assert.Empty(t, Delta([]types.Record{{"id": float64(1)}}, []types.Record{{"id": 1}}))
}

func TestDelta_KeepsDuplicatesInCurrent(t *testing.T) {
	current := []types.Record{{"id": 2}, {"id": 2}}
	assert.Len(t, Delta(nil, current), 2)
	assert.Empty(t, Delta([]types.Record{{"id": 2}}, current))
}

func TestDeltaProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Delta(P, P) is empty", prop.ForAll(
		func(ids []int) bool {
			p := recordsFromIDs(ids)
			return len(Delta(p, p)) == 0
		},
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.Property("Delta against nothing returns current unchanged", prop.ForAll(
		func(ids []int) bool {
			c := recordsFromIDs(ids)
			got := Delta(nil, c)
			if len(got) != len(c) {
				return false
			}
			for i := range c {
				if got[i]["id"] != c[i]["id"] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.Property("Delta keeps exactly the current records absent from previous, in order", prop.ForAll(
		func(prevIDs, curIDs []int) bool {
			inPrev := make(map[int]bool)
			for _, id := range prevIDs {
				inPrev[id] = true
			}
			want := make([]int, 0)
			for _, id := range curIDs {
				if !inPrev[id] {
					want = append(want, id)
				}
			}

			got := Delta(recordsFromIDs(prevIDs), recordsFromIDs(curIDs))
			if len(got) != len(want) {
				return false
			}
			for i, record := range got {
				if record["id"] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
