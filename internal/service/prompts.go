package service

import (
	"strings"
	"text/template"
	"time"

	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
)

var promptFuncs = template.FuncMap{
	"brl":  finance.FormatBRL,
	"date": func(t time.Time) string { return t.Format("02/01/2006") },
}

var extractPrompt = template.Must(template.New("extract").Parse(
	`Você é um especialista em finanças pessoais e sua tarefa é extrair detalhes de transações financeiras a partir de texto em português.

Analise o texto fornecido e identifique o valor da transação, uma descrição concisa, a categoria mais adequada e determine se é uma transação única ou uma conta recorrente.

Texto: {{.Text}}

Responda em JSON com os campos:
- "amount": valor da transação (em números, sempre positivo)
- "description": descrição concisa da transação
- "category": categoria da transação
- "isRecurring": verdadeiro se for uma conta recorrente, falso se for uma transação única`))

var insightsPrompt = template.Must(template.New("insights").Funcs(promptFuncs).Parse(
	`Você é um assistente financeiro pessoal amigável e proativo. Sua tarefa é analisar a lista de transações de um usuário e gerar um resumo com insights e dicas valiosas em português.

Seja conciso, use uma linguagem fácil de entender e formate sua resposta usando markdown.

Seu resumo deve incluir:
1. Uma breve saudação e um panorama geral.
2. Um ou dois insights interessantes sobre os padrões de gastos (ex: maiores categorias de despesa, aumento em algum gasto específico).
3. Uma dica prática e acionável para ajudar o usuário a economizar ou a gerenciar melhor seu dinheiro.
4. Uma palavra de encorajamento.

Aqui estão as transações:
{{range .Transactions}}- Descrição: {{.Description}}, Valor: {{brl .Amount}}, Tipo: {{.Type}}, Categoria: {{.Category}}, Data: {{date .Date}}
{{end}}
Gere os insights a partir desses dados.`))

var shoppingPrompt = template.Must(template.New("shopping").Parse(
	`Você é um assistente de compras especialista em mercado brasileiro. Sua tarefa é analisar uma lista de compras e fornecer uma estimativa de custo total em Reais (BRL) e sugestões de itens relacionados.

Use seu conhecimento sobre preços médios no Brasil para a estimativa de custo. Para as sugestões, pense em itens que combinam ou que são comumente comprados juntos.

A lista de compras é a seguinte:
{{range .Items}}- {{.Name}}
{{end}}
Gere a resposta no formato JSON.`))

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
