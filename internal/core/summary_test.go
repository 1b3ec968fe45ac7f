package core

import (
	"math"
	"testing"
)

func entry(cents int64, date string) Entry {
	return Entry{Amount: Money{Cents: cents}, Date: date}
}

func TestTotalsExample(t *testing.T) {
	entries := []Entry{entry(10000, "2024-01-05"), entry(5000, "2024-02-01")}

	if got := Total(entries); got.Cents != 15000 {
		t.Fatalf("total expected 15000, got %d", got.Cents)
	}
	if got := MonthlyTotal(entries, 2024, 1); got.Cents != 10000 {
		t.Fatalf("january expected 10000, got %d", got.Cents)
	}
	if got := MonthlyTotal(entries, 2023, 1); got.Cents != 0 {
		t.Fatalf("january 2023 expected 0, got %d", got.Cents)
	}
}

func TestEmptyReducesToZero(t *testing.T) {
	if got := Total(nil); !got.IsZero() {
		t.Fatalf("expected zero, got %d", got.Cents)
	}
	if got := MonthlyTotal([]Entry{}, 2024, 1); !got.IsZero() {
		t.Fatalf("expected zero, got %d", got.Cents)
	}
	s := Summarize(nil, nil)
	if !s.TotalIncome.IsZero() || !s.TotalExpenses.IsZero() || !s.NetProfit.IsZero() || s.ProfitMargin != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestTotalOfLargestAmountsStaysPositive(t *testing.T) {
	largest, err := ParseAmount("100000000000")
	if err != nil {
		t.Fatalf("largest amount rejected: %v", err)
	}
	entries := make([]Entry, 1000)
	for i := range entries {
		entries[i] = Entry{Amount: largest, Date: "2024-01-05"}
	}

	got := Total(entries)
	if want := 1000 * MaxAmountCents; got.Cents != want {
		t.Fatalf("total expected %d, got %d", want, got.Cents)
	}
	if got := MonthlyTotal(entries, 2024, 1); got.Cents <= 0 {
		t.Fatalf("monthly total wrapped to %d", got.Cents)
	}
}

func TestInMonthSkipsUnparseableDates(t *testing.T) {
	entries := []Entry{
		entry(100, "2024-03-10T23:30:00Z"),
		entry(200, "03/15/2024"),
		entry(400, "not a date"),
	}
	if got := MonthlyTotal(entries, 2024, 3); got.Cents != 300 {
		t.Fatalf("expected 300, got %d", got.Cents)
	}
	if got := Total(entries); got.Cents != 700 {
		t.Fatalf("expected 700, got %d", got.Cents)
	}
}

func TestSortByDateDesc(t *testing.T) {
	entries := []Entry{
		{ID: "a", Date: "2024-01-05"},
		{ID: "bad", Date: "??"},
		{ID: "b", Date: "2024-03-01"},
		{ID: "c", Date: "2024-01-05"},
		{ID: "d", Date: "2023-12-31"},
	}
	SortByDateDesc(entries)

	want := []string{"b", "a", "c", "d", "bad"}
	for i, id := range want {
		if entries[i].ID != id {
			t.Fatalf("position %d expected %s, got %s (%v)", i, id, entries[i].ID, entries)
		}
	}
}

func TestSummarize(t *testing.T) {
	incomes := []Entry{entry(100000, "2024-01-01"), entry(50000, "2024-02-01")}
	expenses := []Entry{entry(30000, "2024-01-10")}

	s := Summarize(incomes, expenses)
	if s.TotalIncome.Cents != 150000 || s.TotalExpenses.Cents != 30000 || s.NetProfit.Cents != 120000 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if math.Abs(s.ProfitMargin-80) > 1e-9 {
		t.Fatalf("expected margin 80, got %v", s.ProfitMargin)
	}

	loss := Summarize(nil, expenses)
	if loss.NetProfit.Cents != -30000 || loss.ProfitMargin != 0 {
		t.Fatalf("unexpected loss summary: %+v", loss)
	}
}

func TestMonthlyBreakdown(t *testing.T) {
	incomes := []Entry{entry(1000, "2024-01-01"), entry(500, "2024-12-31"), entry(700, "2023-01-01")}
	expenses := []Entry{entry(300, "2024-01-20")}

	rows := MonthlyBreakdown(incomes, expenses, 2024)
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if rows[0].Month != 1 || rows[0].Income.Cents != 1000 || rows[0].Expenses.Cents != 300 || rows[0].Net.Cents != 700 {
		t.Fatalf("unexpected january: %+v", rows[0])
	}
	if rows[11].Income.Cents != 500 || rows[11].Net.Cents != 500 {
		t.Fatalf("unexpected december: %+v", rows[11])
	}
	if !rows[5].Income.IsZero() || !rows[5].Expenses.IsZero() {
		t.Fatalf("expected empty june: %+v", rows[5])
	}
}
