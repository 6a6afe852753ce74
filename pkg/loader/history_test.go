package loader

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestHistoryRecordsOutcomes(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	if _, err := s.LoadReader(ctx, "good", strings.NewReader(sample)); err != nil {
		t.Fatal(err)
	}
	s.LoadReader(ctx, "empty", strings.NewReader("G28\n"))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	s.LoadReader(cancelled, "cancelled", strings.NewReader(sample))

	recs := s.History().List(0, 0, "")
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	want := []struct {
		source string
		status EventType
		code   string
	}{
		{"cancelled", EventCancelled, "LOAD_CANCELLED"},
		{"empty", EventFailed, "MODEL_EMPTY"},
		{"good", EventFinished, ""},
	}
	for i, w := range want {
		r := recs[i]
		if r.Source != w.source || r.Status != w.status || r.Code != w.code {
			t.Errorf("record %d = %+v, want %s/%s/%s", i, r, w.source, w.status, w.code)
		}
		if r.EndTime.Before(r.StartTime) {
			t.Errorf("record %d ends before it starts", i)
		}
	}
	if recs[2].Layers != 2 || recs[2].Lines == 0 {
		t.Errorf("finished record = %+v", recs[2])
	}

	tot := s.History().Totals()
	if tot.Loads != 3 || tot.Finished != 1 || tot.Failed != 1 || tot.Cancelled != 1 {
		t.Errorf("totals = %+v", tot)
	}
}

func TestHistoryListPaging(t *testing.T) {
	h := NewHistory(3)
	base := time.Unix(1700000000, 0)
	for i := 1; i <= 5; i++ {
		h.add(Record{Generation: uint64(i), StartTime: base.Add(time.Duration(i) * time.Second), Duration: float64(i)})
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	gens := func(rs []Record) []uint64 {
		var out []uint64
		for _, r := range rs {
			out = append(out, r.Generation)
		}
		return out
	}
	tests := []struct {
		limit, start int
		order        string
		want         []uint64
	}{
		{0, 0, "", []uint64{5, 4, 3}},
		{0, 0, "asc", []uint64{3, 4, 5}},
		{2, 0, "", []uint64{5, 4}},
		{1, 1, "", []uint64{4}},
		{0, 3, "", nil},
	}
	for _, tt := range tests {
		got := gens(h.List(tt.limit, tt.start, tt.order))
		if len(got) != len(tt.want) {
			t.Errorf("List(%d, %d, %q) = %v, want %v", tt.limit, tt.start, tt.order, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("List(%d, %d, %q) = %v, want %v", tt.limit, tt.start, tt.order, got, tt.want)
				break
			}
		}
	}
	if tot := h.Totals(); tot.LongestLoad != 5 || tot.TotalTime != 12 {
		t.Errorf("totals = %+v", tot)
	}
	h.Reset()
	if h.Len() != 0 {
		t.Error("Reset kept records")
	}
}
