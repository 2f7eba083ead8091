package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"github.com/nurbolat/kassa/internal/currency"
)

// StrategyVision is the strategy name recorded for the remote vision
// extractor.
const StrategyVision = "vision"

const visionPrompt = `You are analyzing a receipt or invoice image. Text may be in Russian, Kazakh or English. Carefully read everything and extract:

1. **Total amount**: the grand total. Markers: ИТОГО, ИТОГ, Барлығы, Жалпы, К ОПЛАТЕ, Төлеуге, TOTAL. Amounts may contain spaces: "1 000" means 1000.
2. **Currency**: from symbols or words: ₸/тг/тенге = KZT, ₽/руб = RUB, $ = USD, € = EUR, ¥ = CNY, ₩ = KRW, ₺ = TRY, RM = MYR. Use null if none is visible.
3. **Date**: the purchase date in YYYY-MM-DD format.
4. **Merchant**: the store or business name, usually at the top.
5. **Description**: a short summary of what was bought.
6. **Confidence**: your certainty per field, each between 0 and 1.

Return ONLY valid JSON in this exact format, no markdown code blocks:
{
  "amount": 0.00,
  "currency": "KZT",
  "date": "YYYY-MM-DD",
  "merchant": "Store Name",
  "description": "groceries",
  "confidence": {"amount": 0.0, "currency": 0.0, "merchant": 0.0, "date": 0.0}
}

Use null for any field you cannot find.`

// Gemini implements Extractor using the Google Gemini vision API.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini extractor.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		timeout: timeout,
	}, nil
}

func (g *Gemini) Name() string { return StrategyVision }

// Extract sends the receipt image to Gemini and parses the structured
// reply.
func (g *Gemini) Extract(ctx context.Context, image []byte) (*Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := []genai.Part{
		genai.ImageData("png", image),
		genai.Text(visionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	fields, err := parseVisionJSON(sb.String())
	if err != nil {
		return nil, fmt.Errorf("parsing vision response: %w", err)
	}
	return fields, nil
}

// Close closes the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

type visionResult struct {
	Amount      *float64 `json:"amount"`
	Currency    *string  `json:"currency"`
	Date        *string  `json:"date"`
	Merchant    *string  `json:"merchant"`
	Description *string  `json:"description"`
	Confidence  *struct {
		Amount   float64 `json:"amount"`
		Currency float64 `json:"currency"`
		Merchant float64 `json:"merchant"`
		Date     float64 `json:"date"`
	} `json:"confidence"`
}

// parseVisionJSON turns the model's reply into Fields. Models sometimes
// wrap the JSON in markdown fences or prose; only the outermost object
// is parsed.
func parseVisionJSON(text string) (*Fields, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	text = text[start : end+1]

	var r visionResult
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	f := &Fields{Strategy: StrategyVision}
	if r.Amount != nil && *r.Amount > 0 {
		f.Amount = decimal.NewFromFloat(*r.Amount).Round(2)
	}
	if r.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*r.Currency))
		if currency.IsSupported(code) {
			f.Currency = code
		}
	}
	if r.Date != nil && *r.Date != "" {
		for _, layout := range []string{"2006-01-02", "02.01.2006", "02/01/2006", "2006/01/02"} {
			if d, err := time.Parse(layout, *r.Date); err == nil {
				f.Date = d
				break
			}
		}
	}
	if r.Merchant != nil {
		f.Merchant = clipMerchant(strings.TrimSpace(*r.Merchant))
	}
	if r.Description != nil {
		f.Description = strings.TrimSpace(*r.Description)
	}

	if r.Confidence != nil {
		f.Confidence = Confidence{
			Amount:   clamp01(r.Confidence.Amount),
			Currency: clamp01(r.Confidence.Currency),
			Merchant: clamp01(r.Confidence.Merchant),
			Date:     clamp01(r.Confidence.Date),
		}
	} else {
		// Older prompts return no per-field scores; the vision models
		// are reliably accurate when they answer at all.
		f.Confidence = Confidence{Amount: 0.9, Currency: 0.9, Merchant: 0.9, Date: 0.9}
	}
	zeroMissing(f)
	f.Confidence.Overall = overallVision(f)
	return f, nil
}

// zeroMissing forces confidence to zero for fields the model did not
// actually return, whatever it claimed.
func zeroMissing(f *Fields) {
	if !f.HasAmount() {
		f.Confidence.Amount = 0
	}
	if f.Currency == "" {
		f.Confidence.Currency = 0
	}
	if f.Merchant == "" {
		f.Confidence.Merchant = 0
	}
	if f.Date.IsZero() {
		f.Confidence.Date = 0
	}
}

// overallVision is the extractor's reported amount score, the field the
// whole pipeline hinges on.
func overallVision(f *Fields) float64 {
	return f.Confidence.Amount
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
