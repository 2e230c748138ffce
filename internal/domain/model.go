package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaType is the JSON type of a response-schema node.
type SchemaType string

const (
	SchemaObject  SchemaType = "object"
	SchemaString  SchemaType = "string"
	SchemaNumber  SchemaType = "number"
	SchemaBoolean SchemaType = "boolean"
	SchemaArray   SchemaType = "array"
)

// Schema describes the JSON shape a model response must follow. Adapters
// translate it into their provider's structured-output format.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// ModelRequest is one prompt sent to a hosted language model.
type ModelRequest struct {
	// Operation labels the call in metrics and traces (extract, insights, shopping).
	Operation string
	Prompt    string
	// Schema is nil for free-text responses.
	Schema *Schema
}

// ModelResponse is the raw text returned by the model plus token usage.
type ModelResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// ExtractRequest is the body for POST /v1/ai/extract and /v1/transactions/text.
type ExtractRequest struct {
	Text string `json:"text"`
	// Type overrides the keyword classifier when set.
	Type TransactionType `json:"type,omitempty"`
	Date *time.Time      `json:"date,omitempty"`
}

// ExtractedTransaction is the structured result of the natural-language extractor.
type ExtractedTransaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	IsRecurring bool            `json:"isRecurring"`
}

// InsightTransaction is a transaction without its id, as sent to the model.
type InsightTransaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Type        TransactionType `json:"type"`
}

// InsightsRequest is the body for POST /v1/ai/insights. An absent list means
// "use the session's transactions".
type InsightsRequest struct {
	Transactions []InsightTransaction `json:"transactions"`
}

// InsightsResult carries the markdown summary.
type InsightsResult struct {
	Summary string `json:"summary"`
}

// ShoppingAnalysisRequest is the body for POST /v1/ai/shopping-analysis.
type ShoppingAnalysisRequest struct {
	Items []ShoppingAnalysisItem `json:"items"`
}

// TextTransactionResult is returned when a transaction is created from free
// text: the stored transaction plus the extractor's recurrence hint.
type TextTransactionResult struct {
	Transaction Transaction `json:"transaction"`
	IsRecurring bool        `json:"isRecurring"`
}
