package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"boringexpenses/pkg/currency"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

var ErrEmptyQuestion = errors.New("please provide a valid question")

// ExpenseRow is the view of an expense given to the model.
type ExpenseRow struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
}

// AnswerQuestion answers a free-text question about rows.
func (c *Client) AnswerQuestion(ctx context.Context, question string, rows []ExpenseRow) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	prompt, err := BuildChatPrompt(question, rows)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, "chat", anthropic.MessageNewParams{
		MaxTokens:   2000,
		Temperature: anthropic.Float(0.3),
		System: []anthropic.TextBlockParam{{
			Text: "You are an assistant helping a user analyze their expense data. Answer using only the expense information provided.",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
}

// Summarize returns the headline statistics of rows: count, totals and
// averages per currency, and the date range.
func Summarize(rows []ExpenseRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Total expenses: %d\n", len(rows))

	totals := map[string]decimal.Decimal{}
	counts := map[string]int64{}
	var first, last string
	for _, r := range rows {
		code := currency.Normalize(r.Currency)
		totals[code] = totals[code].Add(r.Amount)
		counts[code]++
		if r.Date != "" && (first == "" || r.Date < first) {
			first = r.Date
		}
		if r.Date > last {
			last = r.Date
		}
	}
	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	var sums, avgs []string
	for _, code := range codes {
		sums = append(sums, currency.Format(totals[code], code))
		avgs = append(avgs, currency.Format(totals[code].Div(decimal.NewFromInt(counts[code])), code))
	}
	if len(sums) == 0 {
		sums = []string{currency.Format(decimal.Zero, currency.Default)}
		avgs = sums
	}
	fmt.Fprintf(&b, "- Total amount spent: %s\n", strings.Join(sums, ", "))
	fmt.Fprintf(&b, "- Average expense: %s\n", strings.Join(avgs, ", "))
	fmt.Fprintf(&b, "- Date range: %s to %s\n", displayDate(first), displayDate(last))
	return b.String()
}

func displayDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "N/A"
	}
	return t.Format("Mon Jan 02 2006")
}

// BuildChatPrompt renders the prompt for question over rows.
func BuildChatPrompt(question string, rows []ExpenseRow) (string, error) {
	data := make([]ExpenseRow, len(rows))
	for i, r := range rows {
		if strings.TrimSpace(r.Category) == "" {
			r.Category = "Uncategorized"
		}
		data[i] = r
	}
	detail, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode expenses: %w", err)
	}
	var b strings.Builder
	b.WriteString("EXPENSE DATA SUMMARY:\n")
	b.WriteString(Summarize(rows))
	b.WriteString("\nDETAILED EXPENSE DATA:\n")
	b.Write(detail)
	fmt.Fprintf(&b, "\n\nUSER QUESTION: %q\n\n", question)
	b.WriteString(`INSTRUCTIONS:
1. Analyze the expense data to answer the user's question accurately
2. Provide specific numbers, dates, and amounts when relevant
3. If the question asks about trends, identify patterns in the data
4. If the question asks about categories, group by category or location as appropriate
5. If the data doesn't contain enough information to answer the question, say so politely
6. Format amounts in the currency they were spent in
7. Treat expenses marked "Uncategorized" as having no category
8. Keep responses concise but informative
`)
	return b.String(), nil
}
