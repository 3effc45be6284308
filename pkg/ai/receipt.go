package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"boringexpenses/pkg/receipts"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedMedia = errors.New("unsupported image type for AI extraction")

const receiptPrompt = `Analyze this receipt image and extract the following information in JSON format:
- description: A concise description of what was purchased (e.g., "Business lunch", "Office supplies", "Taxi ride")
- location: The business name or location where the purchase was made
- date: The date of the transaction in ISO format (YYYY-MM-DDTHH:MM:SS); if time is not available, use 12:00:00
- amount: The total amount as a number (just the numeric value, no currency symbols)
- currency: The ISO 4217 code of the currency, if shown
- confidence: A confidence score from 0 to 1 indicating how confident you are in the extraction

If you cannot extract a field clearly, use these defaults: description "Expense", location "", date today at 12:00:00, amount 0, confidence 0.1.

Return only valid JSON with no additional text or formatting.`

var supportedImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func (c *Client) Name() string { return "ai" }

// Extract implements receipts.Extractor.
func (c *Client) Extract(ctx context.Context, image []byte, mime string) (*receipts.Data, error) {
	return c.ExtractReceipt(ctx, image, mime)
}

func (c *Client) ExtractReceipt(ctx context.Context, image []byte, mime string) (*receipts.Data, error) {
	if !supportedImages[mime] {
		return nil, ErrUnsupportedMedia
	}
	text, err := c.complete(ctx, "extract_receipt", anthropic.MessageNewParams{
		MaxTokens:   1000,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(receiptPrompt),
			),
		},
	})
	if err != nil {
		return nil, err
	}
	d := ParseReceipt(text, time.Now())
	d.Source = c.Name()
	return d, nil
}

type rawReceipt struct {
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Date        string          `json:"date"`
	Amount      json.RawMessage `json:"amount"`
	Currency    string          `json:"currency"`
	Confidence  *float64        `json:"confidence"`
}

var (
	fenceRE    = regexp.MustCompile("```(?:json)?\\s*")
	amountJunk = regexp.MustCompile(`[^\d.\-]`)
)

// ParseReceipt turns a model reply into receipt data. Unparseable replies
// yield the fallback {description "Expense", confidence 0.1}.
func ParseReceipt(reply string, now time.Time) *receipts.Data {
	today := now.Format("2006-01-02")
	fallback := &receipts.Data{Description: "Expense", Date: today, Confidence: 0.1}

	cleaned := strings.TrimSpace(fenceRE.ReplaceAllString(reply, ""))
	var raw rawReceipt
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return fallback
	}
	d := &receipts.Data{
		Description: strings.TrimSpace(raw.Description),
		Location:    strings.TrimSpace(raw.Location),
		Currency:    strings.ToUpper(strings.TrimSpace(raw.Currency)),
		Amount:      parseAmount(raw.Amount),
		Date:        normalizeDate(raw.Date, today),
		Confidence:  0.5,
	}
	if d.Description == "" {
		d.Description = "Expense"
	}
	if raw.Confidence != nil && *raw.Confidence > 0 {
		d.Confidence = min(*raw.Confidence, 1)
	}
	return d
}

func parseAmount(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	s = amountJunk.ReplaceAllString(s, "")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

func normalizeDate(s, today string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return today
}
