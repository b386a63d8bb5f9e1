package facts

import (
	"math"

	"ledgerqa/internal/core"
)

// accumulator is treated as a value: merge and the add helpers return a
// new accumulator and never write to the receiver's maps.
type accumulator struct {
	income, grossIncome, expense float64
	ownerDraw, offsetNetting     float64

	ownerDrawByCat map[string]float64
	nettingByCat   map[string]float64
	expenseByCat   map[string]float64
	incomeByCat    map[string]float64
}

func (a accumulator) totals() Totals {
	return Totals{
		Income:      round2(a.income),
		GrossIncome: round2(a.grossIncome),
		Expense:     round2(a.expense),
		Net:         round2(a.income - a.expense),
	}
}

func (a accumulator) merge(b accumulator) accumulator {
	return accumulator{
		income:         a.income + b.income,
		grossIncome:    a.grossIncome + b.grossIncome,
		expense:        a.expense + b.expense,
		ownerDraw:      a.ownerDraw + b.ownerDraw,
		offsetNetting:  a.offsetNetting + b.offsetNetting,
		ownerDrawByCat: mergeMaps(a.ownerDrawByCat, b.ownerDrawByCat),
		nettingByCat:   mergeMaps(a.nettingByCat, b.nettingByCat),
		expenseByCat:   mergeMaps(a.expenseByCat, b.expenseByCat),
		incomeByCat:    mergeMaps(a.incomeByCat, b.incomeByCat),
	}
}

func mergeMaps(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// fold reduces the slice day by day. Offsets are reconciled against the
// linked expenses found anywhere in the same slice.
func (a *Aggregator) fold(days []core.Day) (accumulator, []IncomeNet) {
	linked := linkedOffsets(days)
	var acc accumulator
	var nets []IncomeNet
	for _, d := range days {
		dayAcc, dayNets := a.day(d, linked)
		acc = acc.merge(dayAcc)
		nets = append(nets, dayNets...)
	}
	return acc, nets
}

// linkedOffsets sums, per income id, the expenses that net against it.
func linkedOffsets(days []core.Day) map[string]float64 {
	out := make(map[string]float64)
	for _, d := range days {
		for _, e := range d.Lists.Expense {
			if id := e.LinkedIncomeID(); id != "" {
				out[id] += e.Abs()
			}
		}
	}
	return out
}

func (a *Aggregator) day(d core.Day, linked map[string]float64) (accumulator, []IncomeNet) {
	acc := accumulator{
		ownerDrawByCat: map[string]float64{},
		nettingByCat:   map[string]float64{},
		expenseByCat:   map[string]float64{},
		incomeByCat:    map[string]float64{},
	}
	var nets []IncomeNet

	for _, e := range d.Lists.Income {
		nominal := e.Abs()
		offset, ok := linked[e.ID]
		if e.ID == "" || !ok {
			offset = e.OffsetTotal()
		}
		net := math.Max(0, nominal-offset)
		cat := categoryName(e.CatName)
		acc.grossIncome += nominal
		acc.income += net
		acc.incomeByCat[cat] += net
		if offset > 0 {
			nets = append(nets, IncomeNet{
				ID: e.ID, DateKey: d.DateKey, Category: cat,
				Nominal: nominal, OffsetAmount: offset, NetAmount: net,
			})
		}
	}

	for _, e := range d.Lists.Expense {
		amount := e.Abs()
		cat := categoryName(e.CatName)
		switch a.classifier.ClassifyExpense(e) {
		case ClassOffsetNetting:
			acc.offsetNetting += amount
			acc.nettingByCat[cat] += amount
		case ClassOwnerDraw:
			acc.ownerDraw += amount
			acc.ownerDrawByCat[cat] += amount
		default:
			acc.expense += amount
			acc.expenseByCat[cat] += amount
		}
	}

	for _, e := range d.Lists.Withdrawal {
		cat := e.CatName
		if cat == "" {
			cat = withdrawalCategory
		}
		acc.ownerDraw += e.Abs()
		acc.ownerDrawByCat[cat] += e.Abs()
	}

	for _, t := range d.Lists.Transfer {
		if !t.IsOutOfSystemTransfer {
			continue
		}
		acc.ownerDraw += t.Abs()
		acc.ownerDrawByCat[outOfSystemPayout] += t.Abs()
	}
	return acc, nets
}
