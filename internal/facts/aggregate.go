package facts

import (
	"math"
	"sort"

	"ledgerqa/internal/core"
)

const (
	// DefaultOperationLimit is the floor applied to operation lists unless
	// the caller asks for an exact top-K.
	DefaultOperationLimit = 50
	// DefaultTopCategories is the size of TopExpenseCategories.
	DefaultTopCategories = 5
	// MaxAnomalies caps the anomaly list.
	MaxAnomalies = 5

	uncategorized      = "Без категории"
	outOfSystemPayout  = "Вывод вне системы"
	withdrawalCategory = "Вывод средств"
)

// Operation kinds.
const (
	KindIncome     = "income"
	KindExpense    = "expense"
	KindWithdrawal = "withdrawal"
	KindTransfer   = "transfer"
)

type (
	// Totals are operational figures. Income is net of offsets; GrossIncome
	// keeps the nominal sum.
	Totals struct {
		Income      float64 `json:"income"`
		GrossIncome float64 `json:"grossIncome"`
		Expense     float64 `json:"expense"`
		Net         float64 `json:"net"`
	}

	Bucket struct {
		Amount     float64               `json:"amount"`
		ByCategory []core.CategoryAmount `json:"byCategory"`
	}

	EndBalances struct {
		DateKey string  `json:"dateKey"`
		Open    float64 `json:"open"`
		Hidden  float64 `json:"hidden"`
		Total   float64 `json:"total"`
	}

	// Anomaly is a category whose expense exceeds its income.
	Anomaly struct {
		Name    string  `json:"name"`
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
		Gap     float64 `json:"gap"`
	}

	Operation struct {
		DateKey      string       `json:"dateKey"`
		Kind         string       `json:"kind"`
		Class        ExpenseClass `json:"class,omitempty"`
		ID           string       `json:"id,omitempty"`
		Amount       float64      `json:"amount"`
		Category     string       `json:"category,omitempty"`
		Account      string       `json:"account,omitempty"`
		Counterparty string       `json:"counterparty,omitempty"`
		Project      string       `json:"project,omitempty"`
		OutOfSystem  bool         `json:"outOfSystem,omitempty"`
	}

	// IncomeNet reconciles one income entry against its offsets.
	IncomeNet struct {
		ID           string  `json:"id"`
		DateKey      string  `json:"dateKey"`
		Category     string  `json:"category"`
		Nominal      float64 `json:"nominal"`
		OffsetAmount float64 `json:"offsetAmount"`
		NetAmount    float64 `json:"netAmount"`
	}

	// Slice is the part of the facts on one side of the as-of day.
	Slice struct {
		StartDateKey  string `json:"startDateKey,omitempty"`
		EndDateKey    string `json:"endDateKey,omitempty"`
		Days          int    `json:"days"`
		Totals        Totals `json:"totals"`
		OwnerDraw     Bucket `json:"ownerDraw"`
		OffsetNetting Bucket `json:"offsetNetting"`
	}

	// Facts is the single source of truth for one day range.
	Facts struct {
		StartDateKey         string                `json:"startDateKey,omitempty"`
		EndDateKey           string                `json:"endDateKey,omitempty"`
		Days                 int                   `json:"days"`
		Totals               Totals                `json:"totals"`
		OwnerDraw            Bucket                `json:"ownerDraw"`
		OffsetNetting        Bucket                `json:"offsetNetting"`
		EndBalances          EndBalances           `json:"endBalances"`
		Anomalies            []Anomaly             `json:"anomalies"`
		TopExpenseCategories []core.CategoryAmount `json:"topExpenseCategories"`
		ExpenseByCategory    []core.CategoryAmount `json:"expenseByCategory"`
		IncomeByCategory     []core.CategoryAmount `json:"incomeByCategory"`
		Operations           []Operation           `json:"operations"`
		OffsetIncomes        []IncomeNet           `json:"offsetIncomes,omitempty"`
		Fact                 *Slice                `json:"fact,omitempty"`
		Plan                 *Slice                `json:"plan,omitempty"`
	}

	Options struct {
		// AsOfKey enables the fact/plan split when set.
		AsOfKey           string
		OperationLimit    int
		DisableLimitFloor bool
		TopCategories     int
	}
)

// Aggregator computes Facts over day slices. It holds only configuration.
type Aggregator struct {
	classifier Classifier
}

func NewAggregator(c Classifier) *Aggregator {
	return &Aggregator{classifier: c}
}

// Classifier returns the classifier the aggregator routes lines with.
func (a *Aggregator) Classifier() Classifier {
	return a.classifier
}

// Aggregate is a pure function of days; it never reads outside the slice.
func (a *Aggregator) Aggregate(days []core.Day, opts Options) Facts {
	f := Facts{Days: len(days)}
	if len(days) > 0 {
		f.StartDateKey = days[0].DateKey
		f.EndDateKey = days[len(days)-1].DateKey
		last := days[len(days)-1]
		f.EndBalances = EndBalances{
			DateKey: last.DateKey,
			Open:    last.ScopedBalance(core.VisibilityOpen),
			Hidden:  last.ScopedBalance(core.VisibilityHidden),
			Total:   last.ScopedBalance(core.VisibilityAll),
		}
	}

	acc, nets := a.fold(days)
	f.Totals = acc.totals()
	f.OwnerDraw = Bucket{Amount: acc.ownerDraw, ByCategory: core.CategoryAmountsFromMap(acc.ownerDrawByCat)}
	f.OffsetNetting = Bucket{Amount: acc.offsetNetting, ByCategory: core.CategoryAmountsFromMap(acc.nettingByCat)}
	f.ExpenseByCategory = core.CategoryAmountsFromMap(acc.expenseByCat)
	f.IncomeByCategory = core.CategoryAmountsFromMap(acc.incomeByCat)
	f.Anomalies = anomalies(acc.incomeByCat, acc.expenseByCat)
	f.OffsetIncomes = nets

	top := opts.TopCategories
	if top <= 0 {
		top = DefaultTopCategories
	}
	f.TopExpenseCategories = firstN(f.ExpenseByCategory, top)
	f.Operations = a.TopOperations(days, opts.OperationLimit, opts.DisableLimitFloor)

	if opts.AsOfKey != "" {
		fact, plan := splitAt(days, opts.AsOfKey)
		f.Fact = a.slice(fact)
		f.Plan = a.slice(plan)
	}
	return f
}

// Totals aggregates only the totals, for comparison periods.
func (a *Aggregator) Totals(days []core.Day) Totals {
	acc, _ := a.fold(days)
	return acc.totals()
}

func (a *Aggregator) slice(days []core.Day) *Slice {
	acc, _ := a.fold(days)
	s := &Slice{
		Days:          len(days),
		Totals:        acc.totals(),
		OwnerDraw:     Bucket{Amount: acc.ownerDraw, ByCategory: core.CategoryAmountsFromMap(acc.ownerDrawByCat)},
		OffsetNetting: Bucket{Amount: acc.offsetNetting, ByCategory: core.CategoryAmountsFromMap(acc.nettingByCat)},
	}
	if len(days) > 0 {
		s.StartDateKey = days[0].DateKey
		s.EndDateKey = days[len(days)-1].DateKey
	}
	return s
}

// splitAt returns days <= asOf and days > asOf.
func splitAt(days []core.Day, asOf string) ([]core.Day, []core.Day) {
	i := sort.Search(len(days), func(i int) bool { return days[i].DateKey > asOf })
	return days[:i:i], days[i:]
}

// TopOperations lists ledger rows by absolute amount descending, ties by
// date ascending. The limit is raised to DefaultOperationLimit unless exact
// is set.
func (a *Aggregator) TopOperations(days []core.Day, limit int, exact bool) []Operation {
	if limit <= 0 {
		limit = DefaultOperationLimit
	}
	if !exact && limit < DefaultOperationLimit {
		limit = DefaultOperationLimit
	}

	ops := a.Operations(days)
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Amount != ops[j].Amount {
			return ops[i].Amount > ops[j].Amount
		}
		return ops[i].DateKey < ops[j].DateKey
	})
	if len(ops) > limit {
		ops = ops[:limit]
	}
	return ops
}

// Operations lists every ledger row of days in date order.
func (a *Aggregator) Operations(days []core.Day) []Operation {
	var ops []Operation
	for _, d := range days {
		ops = append(ops, a.dayOperations(d)...)
	}
	return ops
}

func (a *Aggregator) dayOperations(d core.Day) []Operation {
	var ops []Operation
	entry := func(kind string, class ExpenseClass, e core.Entry) Operation {
		return Operation{
			DateKey: d.DateKey, Kind: kind, Class: class, ID: e.ID, Amount: e.Abs(),
			Category: e.CatName, Account: e.AccName, Counterparty: e.ContName, Project: e.ProjName,
		}
	}
	for _, e := range d.Lists.Income {
		ops = append(ops, entry(KindIncome, "", e))
	}
	for _, e := range d.Lists.Expense {
		ops = append(ops, entry(KindExpense, a.classifier.ClassifyExpense(e), e))
	}
	for _, e := range d.Lists.Withdrawal {
		ops = append(ops, entry(KindWithdrawal, ClassOwnerDraw, e))
	}
	for _, t := range d.Lists.Transfer {
		op := Operation{
			DateKey: d.DateKey, Kind: KindTransfer, ID: t.ID, Amount: t.Abs(),
			Account: t.FromAccName, Counterparty: t.ToAccName, OutOfSystem: t.IsOutOfSystemTransfer,
		}
		if t.IsOutOfSystemTransfer {
			op.Class = ClassOwnerDraw
		}
		ops = append(ops, op)
	}
	return ops
}

func firstN(items []core.CategoryAmount, n int) []core.CategoryAmount {
	if len(items) > n {
		items = items[:n]
	}
	out := make([]core.CategoryAmount, len(items))
	copy(out, items)
	return out
}

func anomalies(income, expense map[string]float64) []Anomaly {
	var out []Anomaly
	for name, in := range income {
		ex := expense[name]
		if in > 0 && ex > in {
			out = append(out, Anomaly{Name: name, Income: in, Expense: ex, Gap: ex - in})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gap != out[j].Gap {
			return out[i].Gap > out[j].Gap
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > MaxAnomalies {
		out = out[:MaxAnomalies]
	}
	return out
}

func categoryName(name string) string {
	if name == "" {
		return uncategorized
	}
	return name
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
