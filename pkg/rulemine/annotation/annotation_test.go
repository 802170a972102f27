package annotation

import (
	"reflect"
	"testing"
	"time"
)

func rec(id, sentiment, annotator string, at time.Time) Record {
	return Record{ID: id, Sentiment: sentiment, AnnotatorID: annotator, CreatedAt: at}
}

func TestSortRecordsStable(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		rec("b", "neg", "u1", t0),
		rec("a", "pos", "u2", t0),
		rec("c", "pos", "u1", t0.Add(-time.Hour)),
	}
	SortRecords(records)

	got := []string{records[0].ID, records[1].ID, records[2].ID}
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSnapshotHashOrderInvariant(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := rec("a", "pos", "u1", t0)
	b := rec("b", "neg", "u2", t0.Add(time.Hour))

	h1 := SnapshotHash([]Record{a, b})
	h2 := SnapshotHash([]Record{b, a})
	if h1 != h2 {
		t.Error("hash should not depend on input order")
	}

	c := rec("b", "pos", "u2", t0.Add(time.Hour))
	if SnapshotHash([]Record{a, b}) == SnapshotHash([]Record{a, c}) {
		t.Error("changing a sentiment should change the hash")
	}
}

func TestLabels(t *testing.T) {
	t0 := time.Now()
	records := []Record{
		rec("a", "positive", "u1", t0),
		rec("b", "negative", "u1", t0),
		rec("c", "positive", "u2", t0),
		rec("d", "", "u2", t0),
	}
	got := Labels(records)
	want := []string{"negative", "positive"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("labels = %v, want %v", got, want)
	}
}

func TestAnnotators(t *testing.T) {
	t0 := time.Now()
	records := []Record{
		rec("a", "pos", "u2", t0),
		rec("b", "pos", "u1", t0),
		rec("c", "pos", "", t0),
	}
	got := Annotators(records)
	want := []string{"u1", "u2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("annotators = %v, want %v", got, want)
	}
}
