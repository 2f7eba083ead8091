package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StrategyLocal is the strategy name recorded for the local
// optical-recognition fallback.
const StrategyLocal = "local"

// Ollama implements Extractor with a locally hosted vision model. Unlike
// the remote extractor it only transcribes the receipt; structured
// fields come from the deterministic parser over that transcript.
type Ollama struct {
	baseURL   string
	model     string
	languages []string
	client    *http.Client
	now       func() time.Time
}

// NewOllama creates the local extractor. languages configures which
// languages the transcription prompt mentions; empty selects Russian,
// Kazakh and English.
func NewOllama(baseURL, modelName string, languages []string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if len(languages) == 0 {
		languages = []string{"Russian", "Kazakh", "English"}
	}

	return &Ollama{
		baseURL:   baseURL,
		model:     modelName,
		languages: languages,
		client: &http.Client{
			// local vision models are slow, especially on CPU
			Timeout: 120 * time.Second,
		},
		now: time.Now,
	}, nil
}

func (o *Ollama) Name() string { return StrategyLocal }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract transcribes the receipt image and runs the field parser over
// the transcript.
func (o *Ollama) Extract(ctx context.Context, image []byte) (*Fields, error) {
	text, err := o.transcribe(ctx, image)
	if err != nil {
		return nil, err
	}

	fields := Parse(text, o.now())
	fields.Strategy = StrategyLocal
	return fields, nil
}

func (o *Ollama) transcribe(ctx context.Context, image []byte) (string, error) {
	prompt := fmt.Sprintf(
		"Transcribe every line of text visible on this receipt exactly as printed, one line per row. The text may be in %s. Do not translate, summarize or add commentary.",
		strings.Join(o.languages, ", "))

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading text in receipt and invoice images.",
			},
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text), nil
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error {
	return nil
}
