package main

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/nurbolat/kassa/internal/artifact"
	"github.com/nurbolat/kassa/internal/clarify"
	"github.com/nurbolat/kassa/internal/classify"
	"github.com/nurbolat/kassa/internal/currency"
	"github.com/nurbolat/kassa/internal/dedup"
	"github.com/nurbolat/kassa/internal/extraction"
	"github.com/nurbolat/kassa/internal/pipeline"
	"github.com/nurbolat/kassa/internal/store"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// extMIMEs resolves common file extensions ahead of content sniffing.
var extMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("kassa")
	var (
		dbPath        = fs.StringLong("db", "kassa.db", "Database file path")
		userID        = fs.StringLong("user", "local", "User id to ingest for")
		filePath      = fs.StringLong("file", "", "Receipt file to ingest (image, PDF or DOCX); omit to ingest argv as text")
		mimeType      = fs.StringLong("mime", "", "Override the detected MIME type of --file")
		extractorType = fs.StringLong("extractor", "gemini", "Extractor: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava)")
		rateURL       = fs.StringLong("rate-url", "https://open.er-api.com/v6/latest", "Exchange-rate API base URL")
		rateTTL       = fs.DurationLong("rate-ttl", currency.DefaultCacheTTL, "Exchange-rate cache TTL")
		threshold     = fs.Float64Long("confidence-threshold", pipeline.DefaultConfidenceThreshold, "Minimum per-field confidence before asking the user")
		tolerance     = fs.StringLong("dedup-tolerance", "0.01", "Amount tolerance for duplicate detection")
		window        = fs.DurationLong("dedup-window", dedup.DefaultWindow, "How far back duplicate detection looks")
		pdfPages      = fs.IntLong("pdf-pages", 5, "Maximum PDF pages to render")
		turnLimit     = fs.IntLong("turn-limit", clarify.DefaultTurnLimit, "Clarification questions before giving up")
		primary       = fs.StringLong("primary-currency", pipeline.DefaultPrimaryCurrency, "Primary currency for new user profiles")
		language      = fs.StringLong("lang", pipeline.DefaultLanguage, "Language for new user profiles")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("KASSA"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx := context.Background()

	slog.Info("Opening database...", "path", *dbPath)
	db, err := store.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ensureProfile(db, *userID, *primary, *language)

	var vision extraction.Extractor
	var local extraction.Extractor
	switch *extractorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		vision, err = extraction.NewGemini(ctx, apiKey, *geminiModel, 0)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer vision.Close()
	case "ollama":
		// no remote strategy; the local engine carries everything
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}

	slog.Info("Initializing local extractor...", "url", *ollamaURL, "model", *ollamaModel)
	local, err = extraction.NewOllama(*ollamaURL, *ollamaModel, nil)
	if err != nil {
		slog.Error("Failed to initialize Ollama", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	tol, err := parseTolerance(*tolerance)
	if err != nil {
		slog.Error("Invalid dedup tolerance", "value", *tolerance, "error", err)
		os.Exit(1)
	}

	resolver := currency.NewResolver(
		currency.NewCache(currency.NewHTTPSource(*rateURL, 0), *rateTTL),
		db,
	)
	p := pipeline.New(
		artifact.NewNormalizer(*pdfPages),
		extraction.NewEngine(vision, local),
		classify.New(),
		resolver,
		dedup.NewDetector(db, *window, tol),
		clarify.NewMachine(*turnLimit),
		db,
		*threshold,
	)

	a, err := buildArtifact(*filePath, *mimeType, fs.GetArgs())
	if err != nil {
		slog.Error("Failed to read input", "error", err)
		os.Exit(1)
	}

	outcome, err := p.Submit(ctx, *userID, a)
	if err != nil {
		slog.Error("Submission failed", "error", err)
		os.Exit(1)
	}

	stdin := bufio.NewScanner(os.Stdin)
	for outcome.Status == pipeline.StatusNeedsReply {
		printPrompt(outcome.Prompt)
		if !stdin.Scan() {
			break
		}
		outcome, err = p.Reply(ctx, *userID, stdin.Text())
		if err != nil {
			slog.Error("Reply failed", "error", err)
			os.Exit(1)
		}
	}

	switch outcome.Status {
	case pipeline.StatusCommitted:
		fmt.Printf("committed %s\n", outcome.TransactionID)
	case pipeline.StatusAbandoned:
		fmt.Printf("abandoned: %s\n", outcome.Reason)
	case pipeline.StatusFailed:
		fmt.Printf("failed: %s\n", outcome.Reason)
		os.Exit(1)
	}
}

// ensureProfile creates the user profile on first run so the resolver
// has a primary currency to convert into.
func ensureProfile(db store.DB, userID, primary, language string) {
	if _, err := db.GetProfile(userID); err == nil {
		return
	}
	profile := &store.Profile{UserID: userID, PrimaryCurrency: primary, Language: language}
	if err := db.SaveProfile(profile); err != nil {
		slog.Warn("Failed to save profile", "user", userID, "error", err)
	}
}

// buildArtifact assembles the submission from --file or from the
// remaining arguments as free text.
func buildArtifact(path, mimeOverride string, args []string) (artifact.Artifact, error) {
	if path == "" {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return artifact.Artifact{}, fmt.Errorf("nothing to ingest: pass --file or an expense text")
		}
		return artifact.Artifact{
			ID:   uuid.NewString(),
			Kind: artifact.KindText,
			MIME: "text/plain",
			Text: text,
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("reading %s: %w", path, err)
	}

	mimeType := mimeOverride
	if mimeType == "" {
		mimeType = extMIMEs[strings.ToLower(filepath.Ext(path))]
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	kind, err := artifact.KindFromMIME(mimeType)
	if err != nil {
		return artifact.Artifact{}, err
	}
	a := artifact.Artifact{
		ID:   uuid.NewString(),
		Kind: kind,
		MIME: mimeType,
		Data: data,
	}
	if kind == artifact.KindText {
		a.Text = string(data)
		a.Data = nil
	}
	return a, nil
}

func printPrompt(prompt clarify.Prompt) {
	switch prompt.Question {
	case clarify.QuestionAmount:
		fmt.Println("What is the amount?")
	case clarify.QuestionCurrency:
		fmt.Println("Which currency is this in?")
	case clarify.QuestionCategory:
		fmt.Println("Which category does this belong to?")
	case clarify.QuestionDuplicate:
		fmt.Println("This looks like a duplicate. Save it anyway? (yes/no)")
	}
	if len(prompt.Suggestions) > 0 {
		fmt.Printf("  suggestions: %s\n", strings.Join(prompt.Suggestions, ", "))
	}
}

func parseTolerance(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
