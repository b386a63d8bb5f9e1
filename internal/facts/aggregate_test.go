package facts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerqa/internal/core"
)

func income(id string, amount float64, cat string) core.Entry {
	return core.Entry{ID: id, Amount: amount, CatName: cat, AccName: "Расчетный"}
}

func expense(id string, amount float64, cat string) core.Entry {
	return core.Entry{ID: id, Amount: amount, CatName: cat, AccName: "Расчетный"}
}

func TestAggregateOffsetNetting(t *testing.T) {
	linked := expense("e1", -400, "Зачет по счету")
	linked.LinkedParentID = "inc1"
	days := []core.Day{
		{DateKey: "2026-02-02", Lists: core.Lists{Income: []core.Entry{income("inc1", 1000, "Продажи")}}},
		{DateKey: "2026-02-03", Lists: core.Lists{Expense: []core.Entry{linked, expense("e2", 200, "Аренда")}}},
	}

	f := NewAggregator(DefaultClassifier()).Aggregate(days, Options{})

	assert.Equal(t, 600.0, f.Totals.Income)
	assert.Equal(t, 1000.0, f.Totals.GrossIncome)
	assert.Equal(t, 200.0, f.Totals.Expense, "linked expense is not operational")
	assert.Equal(t, 400.0, f.Totals.Net)
	assert.Equal(t, 400.0, f.OffsetNetting.Amount)
	require.Len(t, f.OffsetIncomes, 1)
	assert.Equal(t, IncomeNet{ID: "inc1", DateKey: "2026-02-02", Category: "Продажи", Nominal: 1000, OffsetAmount: 400, NetAmount: 600}, f.OffsetIncomes[0])
}

func TestAggregateDeclaredOffsetsWhenNoLinkedExpense(t *testing.T) {
	in := income("inc9", 1000, "Продажи")
	in.Offsets = []core.Offset{{Amount: 1500, Note: "зачет"}}
	f := NewAggregator(DefaultClassifier()).Aggregate([]core.Day{{DateKey: "2026-02-02", Lists: core.Lists{Income: []core.Entry{in}}}}, Options{})

	assert.Zero(t, f.Totals.Income, "net amount never goes below zero")
	assert.Equal(t, 1000.0, f.Totals.GrossIncome)
}

func TestAggregateAnomalies(t *testing.T) {
	days := []core.Day{{
		DateKey: "2026-02-05",
		Lists: core.Lists{
			Income:  []core.Entry{income("i1", 100, "Коммуналка"), income("i2", 10, "Связь")},
			Expense: []core.Entry{expense("e1", 150, "Коммуналка"), expense("e2", 150, "Аренда"), expense("e3", 90, "Связь")},
		},
	}}

	f := NewAggregator(DefaultClassifier()).Aggregate(days, Options{})

	require.Len(t, f.Anomalies, 2)
	assert.Equal(t, Anomaly{Name: "Связь", Income: 10, Expense: 90, Gap: 80}, f.Anomalies[0])
	assert.Equal(t, Anomaly{Name: "Коммуналка", Income: 100, Expense: 150, Gap: 50}, f.Anomalies[1])
}

func TestAggregateAnomalyCap(t *testing.T) {
	var day core.Day
	day.DateKey = "2026-02-05"
	for i := 0; i < 8; i++ {
		cat := fmt.Sprintf("cat-%d", i)
		day.Lists.Income = append(day.Lists.Income, income("", 10, cat))
		day.Lists.Expense = append(day.Lists.Expense, expense("", float64(20+i), cat))
	}
	f := NewAggregator(DefaultClassifier()).Aggregate([]core.Day{day}, Options{})
	require.Len(t, f.Anomalies, MaxAnomalies)
	assert.Equal(t, "cat-7", f.Anomalies[0].Name)
}

func TestAggregateOwnerDraw(t *testing.T) {
	days := []core.Day{{
		DateKey: "2026-02-06",
		Lists: core.Lists{
			Expense: []core.Entry{
				expense("e1", 5000, "Вывод средств"),
				expense("e2", 700, "Взаимозачёт"),
				expense("e3", 300, "Маркетинг"),
			},
			Withdrawal: []core.Entry{{ID: "w1", Amount: 1000}},
			Transfer: []core.Transfer{
				{Amount: 250, FromAccName: "Расчетный", ToAccName: "Карта", IsOutOfSystemTransfer: true},
				{Amount: 9000, FromAccName: "Расчетный", ToAccName: "Сейф"},
			},
		},
	}}

	f := NewAggregator(DefaultClassifier()).Aggregate(days, Options{})

	assert.Equal(t, 300.0, f.Totals.Expense)
	assert.Equal(t, 6250.0, f.OwnerDraw.Amount)
	assert.Equal(t, []core.CategoryAmount{
		{Name: "Вывод средств", Amount: 6000},
		{Name: outOfSystemPayout, Amount: 250},
	}, f.OwnerDraw.ByCategory)
	assert.Equal(t, 700.0, f.OffsetNetting.Amount)
	assert.Len(t, f.Operations, 6, "internal transfers are listed but not totalled")
	assert.Equal(t, 9000.0, f.Operations[0].Amount)
}

func TestTopOperations(t *testing.T) {
	var days []core.Day
	for d := 1; d <= 3; d++ {
		day := core.Day{DateKey: fmt.Sprintf("2026-02-%02d", 4-d)}
		for i := 0; i < 25; i++ {
			day.Lists.Expense = append(day.Lists.Expense, expense(fmt.Sprintf("%d-%d", d, i), float64(i*10), "Разное"))
		}
		days = append([]core.Day{day}, days...)
	}
	agg := NewAggregator(DefaultClassifier())

	floored := agg.TopOperations(days, 5, false)
	assert.Len(t, floored, DefaultOperationLimit)

	exact := agg.TopOperations(days, 5, true)
	require.Len(t, exact, 5)
	assert.Equal(t, 240.0, exact[0].Amount)
	assert.Equal(t, "2026-02-01", exact[0].DateKey)
	assert.Equal(t, "2026-02-02", exact[1].DateKey)
	assert.Equal(t, "2026-02-03", exact[2].DateKey)
	assert.Equal(t, 230.0, exact[3].Amount)

	assert.Len(t, agg.TopOperations(days, 0, true), DefaultOperationLimit)
}

func TestAggregateFactPlanSplit(t *testing.T) {
	days := []core.Day{
		{DateKey: "2026-02-10", Lists: core.Lists{Expense: []core.Entry{expense("a", 100, "Аренда")}}},
		{DateKey: "2026-02-15", Lists: core.Lists{Income: []core.Entry{income("b", 500, "Продажи")}}},
		{DateKey: "2026-02-20", Lists: core.Lists{
			Expense:    []core.Entry{expense("c", 300, "Аренда")},
			Withdrawal: []core.Entry{{Amount: 50}},
		}},
	}

	f := NewAggregator(DefaultClassifier()).Aggregate(days, Options{AsOfKey: "2026-02-15"})

	require.NotNil(t, f.Fact)
	require.NotNil(t, f.Plan)
	assert.Equal(t, 2, f.Fact.Days)
	assert.Equal(t, Totals{Income: 500, GrossIncome: 500, Expense: 100, Net: 400}, f.Fact.Totals)
	assert.Equal(t, "2026-02-20", f.Plan.StartDateKey)
	assert.Equal(t, 300.0, f.Plan.Totals.Expense)
	assert.Equal(t, 50.0, f.Plan.OwnerDraw.Amount)
	assert.Equal(t, 400.0, f.Totals.Expense)
}

func TestAggregateIsPure(t *testing.T) {
	days := []core.Day{
		{DateKey: "2026-02-01", TotalBalance: 10, Lists: core.Lists{Expense: []core.Entry{expense("a", 100, "Аренда"), expense("b", 100, "Связь")}}},
		{DateKey: "2026-02-02", Lists: core.Lists{Income: []core.Entry{income("c", 50, "Связь")}}},
	}
	agg := NewAggregator(DefaultClassifier())
	first := agg.Aggregate(days, Options{AsOfKey: "2026-02-01"})
	second := agg.Aggregate(days, Options{AsOfKey: "2026-02-01"})
	assert.Equal(t, first, second)
	assert.Equal(t, "2026-02-02", first.EndBalances.DateKey)
}

func TestAggregateEmpty(t *testing.T) {
	f := NewAggregator(DefaultClassifier()).Aggregate(nil, Options{})
	assert.Zero(t, f.Days)
	assert.Zero(t, f.Totals)
	assert.Empty(t, f.Operations)
	assert.Nil(t, f.Fact)
}
