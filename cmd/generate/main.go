package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"imageloop/internal/imagegen"
	"imageloop/internal/infra"
	"imageloop/internal/journal"
	"imageloop/internal/media"
	"imageloop/internal/providers/genai"
	"imageloop/internal/providers/image"
	"imageloop/internal/scheduler"
	"imageloop/internal/storage"
)

func main() {
	var (
		envFile     string
		journalPath string
		text        string
		style       string
		aspect      string
		negative    string
		mode        string
		refs        []string
		outDir      string
	)
	pflag.StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	pflag.StringVar(&journalPath, "journal", "", "journal file whose tail becomes the prompt")
	pflag.StringVarP(&text, "text", "t", "", "journal text given inline (used when --journal is empty)")
	pflag.StringVar(&style, "style", imagegen.DefaultStylePreset, "style preset")
	pflag.StringVar(&aspect, "aspect", "16:9 cinematic frame", "aspect hint")
	pflag.StringVar(&negative, "negative", "", "things to avoid")
	pflag.StringVar(&mode, "mode", "auto", "provider mode: auto, gemini or imagen")
	pflag.StringArrayVarP(&refs, "ref", "r", nil, "reference image file (repeatable)")
	pflag.StringVarP(&outDir, "out", "o", ".", "directory the image is written to")
	pflag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fail("load %s: %v", envFile, err)
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		fail("%v", err)
	}
	if !cfg.HasCredential() {
		fail("GEMINI_API_KEY is required via environment or GEMINI_API_KEY_FILE")
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	providerMode, err := imagegen.ParseProviderMode(mode)
	if err != nil {
		fail("%v", err)
	}
	if journalPath != "" {
		if text, err = journal.Load(journalPath); err != nil {
			fail("%v", err)
		}
	}
	images, err := loadReferences(refs)
	if err != nil {
		fail("%v", err)
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		Model:       cfg.GeminiImageModel,
		ImagenModel: cfg.ImagenModel,
		HTTPClient:  &http.Client{Timeout: cfg.ProviderTimeout},
		Logger:      &logger,
	})
	if err != nil {
		fail("configure genai client: %v", err)
	}
	orchestrator := imagegen.NewOrchestrator(
		image.NewGeminiGenerator(client, cfg.ReferenceMaxDimension),
		image.NewImagenGenerator(client),
		&logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := uuid.NewString()
	res, err := orchestrator.Attempt(ctx, imagegen.GenerateRequest{
		TextContext: imagegen.ComposePrompt(imagegen.PromptContext{
			Journal:      text,
			StylePreset:  style,
			AspectHint:   aspect,
			NegativeHint: negative,
		}),
		ReferenceImages: images,
		ProviderMode:    providerMode,
		AspectHint:      aspect,
		NegativeHint:    negative,
		RequestID:       id,
	})
	if err != nil {
		cerr := imagegen.Classify(err)
		if cerr.Kind == imagegen.KindQuotaExceeded {
			fail("%s (retry in %s)", cerr.Message, cerr.RetryDelay(imagegen.DefaultRetryDelay))
		}
		fail("%s: %s", cerr.Kind, cerr.Message)
	}

	store, err := storage.NewFileStore(outDir, &logger)
	if err != nil {
		fail("%v", err)
	}
	delivery := scheduler.Delivery{ID: id, Result: res, Source: scheduler.SourceManual, CreatedAt: time.Now()}
	if err := store.Deliver(ctx, delivery); err != nil {
		fail("%v", err)
	}
	fmt.Println(filepath.Join(store.BasePath(), filepath.FromSlash(storage.KeyFor(delivery))))
}

func loadReferences(paths []string) ([]imagegen.InlineImage, error) {
	if len(paths) > imagegen.MaxReferenceImages {
		return nil, fmt.Errorf("at most %d reference images allowed", imagegen.MaxReferenceImages)
	}
	out := make([]imagegen.InlineImage, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("read reference %s: %w", p, err)
		}
		mime := media.DetectMIME(data)
		if !media.IsSupported(mime) {
			return nil, fmt.Errorf("reference %s: unsupported type %q", p, mime)
		}
		out = append(out, imagegen.InlineImage{MIMEType: mime, Data: data})
	}
	return out, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
