package finance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// incomeTerms are matched as whole words against the accent-folded,
// lower-cased description.
var incomeTerms = []string{
	"salario",
	"renda",
	"receita",
	"rendimento",
	"rendimentos",
	"freela",
	"freelance",
	"reembolso",
	"dividendos",
	"pagamento recebido",
	"recebi",
	"recebido",
	"bonus",
}

// foldAccents lower-cases s and strips combining marks ("Salário" -> "salario").
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ClassifyDirection infers income or expense from a description. Anything
// that does not mention an income term is an expense.
func ClassifyDirection(description string) domain.TransactionType {
	folded := " " + strings.Join(strings.FieldsFunc(foldAccents(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "
	for _, term := range incomeTerms {
		if strings.Contains(folded, " "+term+" ") {
			return domain.TransactionIncome
		}
	}
	return domain.TransactionExpense
}
