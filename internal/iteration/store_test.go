package iteration

import (
	"fmt"
	"testing"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/tabular"
)

func baselinePair() domain.DatasetPair {
	return domain.DatasetPair{
		Source: tabular.Decode("FBDI Column,Description\nVENDOR_NAME,Supplier name\nBANK_ACCOUNT_NUM,Account number\nCURRENCY_CODE,Currency\n"),
		Target: tabular.Decode("Legacy Table,Legacy Column\nAVM,VNDNAM\nAVM,VMBKAC\nAVM,VNCURR\n"),
	}
}

func TestStore_ListAscending(t *testing.T) {
	s := New()
	for _, n := range []int{3, 1, 2} {
		s.Record(domain.IterationSnapshot{Number: n, RawTarget: fmt.Sprintf("it-%d", n)})
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len(List) = %d, want 3", len(list))
	}
	for i, snap := range list {
		if snap.Number != i+1 {
			t.Errorf("List[%d].Number = %d, want %d", i, snap.Number, i+1)
		}
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := New()
	s.Record(domain.IterationSnapshot{Number: 1, RawTarget: "first"})
	s.Record(domain.IterationSnapshot{Number: 1, RawTarget: "second"})

	list := s.List()
	if len(list) != 1 || list[0].RawTarget != "second" {
		t.Errorf("List = %v, want single snapshot with RawTarget=second", list)
	}
}

func TestStore_RecordIgnoresNonPositive(t *testing.T) {
	s := New()
	s.Record(domain.IterationSnapshot{Number: 0, RawTarget: "x"})
	s.Record(domain.IterationSnapshot{Number: -1, RawTarget: "y"})
	if got := len(s.List()); got != 0 {
		t.Errorf("len(List) = %d, want 0", got)
	}
}

func TestStore_SelectFinal(t *testing.T) {
	s := New()
	base := baselinePair()

	pair, err := s.Select(0, base)
	if err != nil {
		t.Fatalf("Select(final): %v", err)
	}
	if len(pair.Target.Rows) != 3 || pair.Target.Rows[0]["Legacy Column"] != "VNDNAM" {
		t.Errorf("final target = %v", pair.Target.Rows)
	}
}

func TestStore_SelectHistoricalIteration(t *testing.T) {
	s := New()
	base := baselinePair()

	for n := 1; n <= 3; n++ {
		s.Record(domain.IterationSnapshot{
			Number:    n,
			RawTarget: fmt.Sprintf("Legacy Table,Legacy Column\nAVM,PASS%d_A\nAVM,PASS%d_B\nAVM,PASS%d_C\n", n, n, n),
		})
	}

	pair, err := s.Select(2, base)
	if err != nil {
		t.Fatalf("Select(2): %v", err)
	}
	// Target rows come from iteration 2, paired positionally.
	if got := pair.Target.Rows[1]["Legacy Column"]; got != "PASS2_B" {
		t.Errorf("target row 1 = %q, want PASS2_B", got)
	}
	// Source half is the terminal result's source, unchanged.
	if got := pair.Source.Rows[1]["FBDI Column"]; got != "BANK_ACCOUNT_NUM" {
		t.Errorf("source row 1 = %q, want BANK_ACCOUNT_NUM", got)
	}
	if len(pair.Source.Rows) != len(pair.Target.Rows) {
		t.Errorf("row counts diverge: %d vs %d", len(pair.Source.Rows), len(pair.Target.Rows))
	}
}

func TestStore_SelectPadsShortIteration(t *testing.T) {
	s := New()
	base := baselinePair()
	// Only one decoded row against three source rows.
	s.Record(domain.IterationSnapshot{Number: 1, RawTarget: "Legacy Table,Legacy Column\nAVM,VNDNAM\n"})

	pair, err := s.Select(1, base)
	if err != nil {
		t.Fatalf("Select(1): %v", err)
	}
	if len(pair.Target.Rows) != 3 {
		t.Fatalf("len(Target.Rows) = %d, want 3", len(pair.Target.Rows))
	}
	if pair.Target.Rows[2]["Legacy Column"] != "" {
		t.Errorf("padded row = %v, want empty fields", pair.Target.Rows[2])
	}
}

func TestStore_SelectDropsExcessRows(t *testing.T) {
	s := New()
	base := baselinePair()
	s.Record(domain.IterationSnapshot{
		Number:    1,
		RawTarget: "Legacy Table,Legacy Column\nAVM,A\nAVM,B\nAVM,C\nAVM,EXCESS\n",
	})

	pair, err := s.Select(1, base)
	if err != nil {
		t.Fatalf("Select(1): %v", err)
	}
	if len(pair.Target.Rows) != 3 {
		t.Errorf("len(Target.Rows) = %d, want 3 (excess dropped)", len(pair.Target.Rows))
	}
}

func TestStore_SelectMissing(t *testing.T) {
	s := New()
	_, err := s.Select(7, baselinePair())
	if err != domain.ErrIterationNotFound {
		t.Errorf("err = %v, want ErrIterationNotFound", err)
	}
}
