package core

import (
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

type (
	TransactionType string

	// Period selects the granularity of an income/expense query.
	Period string

	// User is the profile blob returned at login. Only ID is interpreted.
	User struct {
		ID       string `json:"id"`
		Name     string `json:"name,omitempty"`
		Email    string `json:"email,omitempty"`
		Currency string `json:"currency,omitempty"`
	}

	Account struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Balance  Money  `json:"balance"`
		Currency string `json:"currency,omitempty"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		AccountID   string          `json:"accountId"`
		CategoryID  string          `json:"categoryId,omitempty"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		Date        time.Time       `json:"date"`
	}

	Transfer struct {
		ID            string    `json:"id"`
		FromAccountID string    `json:"fromAccountId"`
		ToAccountID   string    `json:"toAccountId"`
		Amount        Money     `json:"amount"`
		Note          string    `json:"note,omitempty"`
		Date          time.Time `json:"date"`
	}

	Category struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Type  TransactionType `json:"type"`
		Color string          `json:"color,omitempty"`
		Icon  string          `json:"icon,omitempty"`
	}

	Budget struct {
		ID         string    `json:"id"`
		CategoryID string    `json:"categoryId"`
		Amount     Money     `json:"amount"`
		Spent      Money     `json:"spent"`
		Period     Period    `json:"period"`
		StartDate  time.Time `json:"startDate"`
		EndDate    time.Time `json:"endDate"`
	}

	// Summary holds account-level totals.
	Summary struct {
		NetBalance        Money `json:"netBalance"`
		TotalIncome       Money `json:"totalIncome"`
		TotalExpense      Money `json:"totalExpense"`
		CreditCardBalance Money `json:"creditCardBalance"`
	}

	// IncomeExpense is the income/expense pair for one period.
	IncomeExpense struct {
		Income  Money `json:"income"`
		Expense Money `json:"expense"`
	}

	// CategorySuggestion is the AI-assisted category guess for a description.
	CategorySuggestion struct {
		CategoryID string  `json:"categoryId"`
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	switch p {
	case Daily, Monthly, Yearly:
		return true
	default:
		return false
	}
}

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// MonthRange returns the first and last day of the month containing t.
func MonthRange(t time.Time) DateRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, -1)
	return DateRange{Start: start, End: end}
}

// Net returns income minus expense.
func (ie IncomeExpense) Net() Money {
	return Money{Cents: ie.Income.Cents - ie.Expense.Cents}
}
