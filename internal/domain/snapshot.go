package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind names a collection of the per-user tree.
type Kind string

const (
	KindTransactions  Kind = "transactions"
	KindGoals         Kind = "goals"
	KindBills         Kind = "bills"
	KindShoppingItems Kind = "shoppingItems"
	KindBudgets       Kind = "budgets"
)

// PremiumKey is the scalar flag stored next to the collections.
const PremiumKey = "isPremium"

// Kinds lists every collection in tree order.
var Kinds = []Kind{KindTransactions, KindGoals, KindBills, KindShoppingItems, KindBudgets}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Snapshot is the complete state of one user's tree. Collections are never nil.
type Snapshot struct {
	UserID        string         `json:"userId"`
	Transactions  []Transaction  `json:"transactions"`
	Goals         []Goal         `json:"goals"`
	Bills         []Bill         `json:"bills"`
	ShoppingItems []ShoppingItem `json:"shoppingItems"`
	Budgets       []Budget       `json:"budgets"`
	IsPremium     bool           `json:"isPremium"`
	// Dropped lists the stored records left out because they failed validation.
	Dropped []RecordIssue `json:"-"`
}

// EmptySnapshot returns the snapshot of a user with no stored data.
func EmptySnapshot(userID string) *Snapshot {
	return &Snapshot{
		UserID:        userID,
		Transactions:  []Transaction{},
		Goals:         []Goal{},
		Bills:         []Bill{},
		ShoppingItems: []ShoppingItem{},
		Budgets:       []Budget{},
	}
}

// RecordIssue describes a stored record that failed validation on read.
type RecordIssue struct {
	Kind Kind
	ID   string
	Err  error
}

func (i RecordIssue) String() string {
	return fmt.Sprintf("%s/%s: %v", i.Kind, i.ID, i.Err)
}

// rawTree mirrors the stored JSON: each collection is an object keyed by record id.
type rawTree struct {
	Transactions  map[string]json.RawMessage `json:"transactions"`
	Goals         map[string]json.RawMessage `json:"goals"`
	Bills         map[string]json.RawMessage `json:"bills"`
	ShoppingItems map[string]json.RawMessage `json:"shoppingItems"`
	Budgets       map[string]json.RawMessage `json:"budgets"`
	IsPremium     *bool                      `json:"isPremium"`
}

type validatable interface {
	Validate() error
}

// DecodeSnapshot turns a stored per-user tree into a Snapshot. Every record is
// validated; malformed records are left out and reported as issues rather than
// failing the whole snapshot. Only a tree that is not a JSON object is an error.
func DecodeSnapshot(userID string, data []byte) (*Snapshot, []RecordIssue, error) {
	snap := EmptySnapshot(userID)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return snap, nil, nil
	}

	var tree rawTree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot for %s: %w", userID, err)
	}

	var issues []RecordIssue
	snap.Transactions = decodeKind(KindTransactions, tree.Transactions, &issues, func(t *Transaction, id string) { t.ID = id })
	snap.Goals = decodeKind(KindGoals, tree.Goals, &issues, func(g *Goal, id string) { g.ID = id })
	snap.Bills = decodeKind(KindBills, tree.Bills, &issues, func(b *Bill, id string) { b.ID = id })
	snap.ShoppingItems = decodeKind(KindShoppingItems, tree.ShoppingItems, &issues, func(i *ShoppingItem, id string) { i.ID = id })
	snap.Budgets = decodeKind(KindBudgets, tree.Budgets, &issues, func(b *Budget, id string) { b.ID = id })
	if tree.IsPremium != nil {
		snap.IsPremium = *tree.IsPremium
	}

	snap.Sort()
	snap.Dropped = issues
	return snap, issues, nil
}

func decodeKind[T any, PT interface {
	*T
	validatable
}](kind Kind, raw map[string]json.RawMessage, issues *[]RecordIssue, setID func(PT, string)) []T {
	out := make([]T, 0, len(raw))
	for id, msg := range raw {
		var rec T
		if err := json.Unmarshal(msg, &rec); err != nil {
			*issues = append(*issues, RecordIssue{Kind: kind, ID: id, Err: err})
			continue
		}
		p := PT(&rec)
		setID(p, id)
		if err := p.Validate(); err != nil {
			*issues = append(*issues, RecordIssue{Kind: kind, ID: id, Err: err})
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Sort puts every collection in display order. Stored trees are keyed maps,
// so order must be imposed after decoding.
func (s *Snapshot) Sort() {
	sort.SliceStable(s.Transactions, func(i, j int) bool {
		a, b := s.Transactions[i], s.Transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID < b.ID
	})
	sort.SliceStable(s.Goals, func(i, j int) bool {
		if s.Goals[i].Name != s.Goals[j].Name {
			return s.Goals[i].Name < s.Goals[j].Name
		}
		return s.Goals[i].ID < s.Goals[j].ID
	})
	sort.SliceStable(s.Bills, func(i, j int) bool {
		a, b := s.Bills[i], s.Bills[j]
		if !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate.Time)
		}
		return a.ID < b.ID
	})
	sort.SliceStable(s.ShoppingItems, func(i, j int) bool {
		a, b := s.ShoppingItems[i], s.ShoppingItems[j]
		if a.Checked != b.Checked {
			return !a.Checked
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	sort.SliceStable(s.Budgets, func(i, j int) bool {
		a, b := s.Budgets[i], s.Budgets[j]
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.ID < b.ID
	})
}

// Goal looks up a goal by id.
func (s *Snapshot) Goal(id string) (Goal, bool) {
	for _, g := range s.Goals {
		if g.ID == id {
			return g, true
		}
	}
	return Goal{}, false
}

// Bill looks up a bill by id.
func (s *Snapshot) Bill(id string) (Bill, bool) {
	for _, b := range s.Bills {
		if b.ID == id {
			return b, true
		}
	}
	return Bill{}, false
}

// Transaction looks up a transaction by id.
func (s *Snapshot) Transaction(id string) (Transaction, bool) {
	for _, t := range s.Transactions {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}

// ShoppingItem looks up a shopping item by id.
func (s *Snapshot) ShoppingItem(id string) (ShoppingItem, bool) {
	for _, i := range s.ShoppingItems {
		if i.ID == id {
			return i, true
		}
	}
	return ShoppingItem{}, false
}

// Budget looks up a budget by id.
func (s *Snapshot) Budget(id string) (Budget, bool) {
	for _, b := range s.Budgets {
		if b.ID == id {
			return b, true
		}
	}
	return Budget{}, false
}
