package core

import (
	"sort"
	"time"
)

// Summary is the dashboard view over all of a user's entries.
type Summary struct {
	TotalIncome   Money
	TotalExpenses Money
	NetProfit     Money
	ProfitMargin  float64 // percent of income, 0 when there is no income
}

// MonthSummary is a compact summary for a specific year+month.
type MonthSummary struct {
	Year     int
	Month    int // 1-12
	Income   Money
	Expenses Money
	Net      Money
}

// Sum folds the amounts of the entries keep accepts. A nil keep accepts all.
func Sum(entries []Entry, keep func(Entry) bool) Money {
	var total Money
	for _, e := range entries {
		if keep == nil || keep(e) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// InMonth matches entries whose parsed date falls in the given month.
// Entries with unparseable dates never match.
func InMonth(year, month int) func(Entry) bool {
	return func(e Entry) bool {
		t, ok := ParseDate(e.Date)
		return ok && t.Year() == year && int(t.Month()) == month
	}
}

func Total(entries []Entry) Money {
	return Sum(entries, nil)
}

func MonthlyTotal(entries []Entry, year, month int) Money {
	return Sum(entries, InMonth(year, month))
}

// SortByDateDesc orders entries latest first. Equal dates keep their input
// order and unparseable dates go last.
func SortByDateDesc(entries []Entry) {
	keys := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if _, seen := keys[e.Date]; seen {
			continue
		}
		t, ok := ParseDate(e.Date)
		if !ok {
			t = time.Time{}
		}
		keys[e.Date] = t
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return keys[entries[i].Date].After(keys[entries[j].Date])
	})
}

func Summarize(incomes, expenses []Entry) Summary {
	s := Summary{
		TotalIncome:   Total(incomes),
		TotalExpenses: Total(expenses),
	}
	s.NetProfit = s.TotalIncome.Sub(s.TotalExpenses)
	if s.TotalIncome.Cents > 0 {
		s.ProfitMargin = float64(s.NetProfit.Cents) / float64(s.TotalIncome.Cents) * 100
	}
	return s
}

// MonthlyBreakdown returns one row per month of year, January first.
func MonthlyBreakdown(incomes, expenses []Entry, year int) []MonthSummary {
	rows := make([]MonthSummary, 12)
	for i := range rows {
		month := i + 1
		in := MonthlyTotal(incomes, year, month)
		out := MonthlyTotal(expenses, year, month)
		rows[i] = MonthSummary{
			Year:     year,
			Month:    month,
			Income:   in,
			Expenses: out,
			Net:      in.Sub(out),
		}
	}
	return rows
}
