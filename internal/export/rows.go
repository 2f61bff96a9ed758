package export

import (
	"fmt"
	"sort"
	"time"

	"finsession/internal/core"
)

var (
	transactionHeader = []any{"Date", "Type", "Category", "Description", "Amount", "Account"}
	accountHeader     = []any{"Name", "Type", "Currency", "Balance"}
)

// monthSheetName is "<name> <yyyy-mm>".
func monthSheetName(name string, at time.Time) string {
	return fmt.Sprintf("%s %04d-%02d", name, at.Year(), int(at.Month()))
}

// TransactionRows renders transactions oldest first with a header row.
// Expenses are written as negative amounts.
func TransactionRows(txs []core.Transaction, cats []core.Category) [][]any {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([][]any, 0, len(sorted)+1)
	rows = append(rows, transactionHeader)
	for _, t := range sorted {
		amount := t.Amount
		if t.Type == core.Expense {
			amount = core.Money{Cents: -amount.Cents}
		}
		category := names[t.CategoryID]
		if category == "" {
			category = t.CategoryID
		}
		rows = append(rows, []any{
			t.Date.Format("2006-01-02"),
			string(t.Type),
			category,
			t.Description,
			amount.String(),
			t.AccountID,
		})
	}
	return rows
}

func AccountRows(accs []core.Account) [][]any {
	rows := make([][]any, 0, len(accs)+1)
	rows = append(rows, accountHeader)
	for _, a := range accs {
		rows = append(rows, []any{a.Name, a.Type, a.Currency, a.Balance.String()})
	}
	return rows
}
