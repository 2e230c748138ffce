package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BillStatus is the payment state of a bill.
type BillStatus string

const (
	BillDue     BillStatus = "due"
	BillPaid    BillStatus = "paid"
	BillOverdue BillStatus = "overdue"
)

func (s BillStatus) Valid() bool {
	return s == BillDue || s == BillPaid || s == BillOverdue
}

// Bill is a recurring or one-off payable.
type Bill struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate Date            `json:"dueDate"`
	Status  BillStatus      `json:"status"`
}

func (b *Bill) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &ErrValidation{Field: "name", Message: "O nome da conta é obrigatório."}
	}
	if !IsPositive(b.Amount) {
		return &ErrValidation{Field: "amount", Message: "O valor deve ser maior que zero."}
	}
	if b.DueDate.IsZero() {
		return &ErrValidation{Field: "dueDate", Message: "A data de vencimento é obrigatória."}
	}
	if !b.Status.Valid() {
		return &ErrValidation{Field: "status", Message: "Status inválido."}
	}
	return nil
}

// BillInput is the payload for creating a bill. Status is computed.
type BillInput struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate Date            `json:"dueDate"`
}

// BillReminder is surfaced once per bill per session when the due date is near.
type BillReminder struct {
	Bill         Bill `json:"bill"`
	DaysUntilDue int  `json:"daysUntilDue"`
}
