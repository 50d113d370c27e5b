package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"profile-assistant/handler"
	"profile-assistant/internal/config"
	"profile-assistant/internal/domain"
	"profile-assistant/internal/integrations/openai"
	"profile-assistant/internal/integrations/paramstore"
	"profile-assistant/internal/integrations/pushover"
	"profile-assistant/internal/profile"
	"profile-assistant/internal/repository"
	"profile-assistant/internal/tools"
	"profile-assistant/internal/usecase"
)

func main() {
	data, err := config.ReadYAML(config.ConfigPath(os.Args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cmd := &cli.Command{
		Name:   "profile-assistant",
		Usage:  "answer questions about one person's career on their behalf",
		Flags:  config.Flags(data),
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the chat API and UI (Lambda runtime when deployed there)",
				Action: runServe,
			},
			{
				Name:  "records",
				Usage: "list recorded leads or unknown questions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Value: domain.RecordKindQuestion, Usage: "lead or question"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum records to print, newest first (0 for all)"},
				},
				Action: runRecords,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("profile-assistant failed", "err", err)
		os.Exit(1)
	}
}

func onLambda() bool {
	return os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" || onLambda() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromCommand(cmd)
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// ---- AWS (only when a prefix or table asks for it) ----
	var (
		awsCfg   aws.Config
		ssmStore *paramstore.Client
	)
	if cfg.ParamPrefix != "" || cfg.RecordsTable != "" {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
	}
	if cfg.ParamPrefix != "" {
		var err error
		ssmStore, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return fmt.Errorf("create SSM client: %w", err)
		}
	}

	// ---- LLM ----
	var keyStore paramstore.Getter
	if ssmStore != nil {
		keyStore = ssmStore
	}
	llm, err := newLLM(ctx, cfg, keyStore)
	if err != nil {
		return err
	}

	// ---- Notifications ----
	token, user := cfg.PushoverToken, cfg.PushoverUser
	if cfg.PushoverFromParamStore() {
		token, user = pushoverSecrets(ctx, ssmStore, cfg, logger)
	}
	notifier := pushover.New(token, user, pushover.WithTimeout(cfg.NotifyTimeout))
	if !notifier.Enabled() {
		logger.Warn("pushover credentials missing; notifications will be dropped")
	}

	// ---- Record store ----
	var recorder tools.Recorder
	if cfg.RecordsTable != "" {
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.RecordsTable)
		if err != nil {
			return fmt.Errorf("create record store: %w", err)
		}
		recorder = store
	}
	recording, err := tools.NewRecording(notifier, recorder, tools.RecordFactory{
		Lead:     repository.NewLeadRecord,
		Question: repository.NewQuestionRecord,
	}, logger)
	if err != nil {
		return fmt.Errorf("create recording tools: %w", err)
	}
	registry, err := tools.NewRegistry(recording.Tools()...)
	if err != nil {
		return fmt.Errorf("create tool registry: %w", err)
	}

	// ---- Documents ----
	docs := profile.Load(profile.Paths{
		Summary:  cfg.SummaryPath,
		Resume:   cfg.ResumePath,
		LinkedIn: cfg.LinkedInPath,
	})
	logger.Info("profile loaded",
		"summary_bytes", len(docs.Summary),
		"resume_bytes", len(docs.Resume),
		"linkedin_bytes", len(docs.LinkedIn),
	)

	chat, err := usecase.NewChatService(llm, registry, docs, usecase.Config{
		Name:          cfg.Name,
		Model:         cfg.Model,
		MaxToolRounds: cfg.MaxToolRounds,
		MaxMessageLen: cfg.MaxMessageLength,
	}, logger)
	if err != nil {
		return fmt.Errorf("create chat service: %w", err)
	}

	if onLambda() {
		h, err := handler.NewHandler(chat, handler.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("create handler: %w", err)
		}
		lambda.Start(h.Handle)
		return nil
	}
	return serveHTTP(ctx, cfg, chat, logger)
}

// newLLM builds the OpenAI client and resolves its key before serving, so a
// missing or unreadable key aborts startup.
func newLLM(ctx context.Context, cfg config.Config, keyStore paramstore.Getter) (*openai.Client, error) {
	opts := []openai.Option{openai.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout})}
	if cfg.OpenAIURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIURL))
	}
	if cfg.OpenAIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIKey))
	} else if keyStore != nil {
		opts = append(opts, openai.WithParamStore(keyStore, cfg.Param("openai-token")))
	}
	llm, err := openai.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout)
	defer cancel()
	if err := llm.Ready(readyCtx); err != nil {
		return nil, fmt.Errorf("resolve OpenAI key: %w", err)
	}
	return llm, nil
}

// pushoverSecrets fills in whichever Pushover credential was not configured
// directly. A lookup failure leaves it empty, which disables notifications.
func pushoverSecrets(ctx context.Context, store paramstore.Getter, cfg config.Config, logger *slog.Logger) (string, string) {
	lookup := func(have, name string) string {
		if have != "" {
			return have
		}
		v, err := paramstore.GetToken(ctx, store, cfg.Param(name))
		if err != nil {
			logger.Warn("failed to read pushover secret", "param", cfg.Param(name), "err", err)
			return ""
		}
		return v
	}
	return lookup(cfg.PushoverToken, "pushover-token"), lookup(cfg.PushoverUser, "pushover-user")
}

func serveHTTP(ctx context.Context, cfg config.Config, chat handler.ChatUseCase, logger *slog.Logger) error {
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := handler.NewRouter(chat, logger)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "ui", "/ui")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runRecords(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromCommand(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))

	kind := cmd.String("kind")
	if kind != domain.RecordKindLead && kind != domain.RecordKindQuestion {
		return fmt.Errorf("kind must be %s or %s, got %q", domain.RecordKindLead, domain.RecordKindQuestion, kind)
	}
	if cfg.RecordsTable == "" {
		return errors.New("records-table is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.RecordsTable)
	if err != nil {
		return fmt.Errorf("create record store: %w", err)
	}
	records, err := store.ListRecords(ctx, kind, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	switch kind {
	case domain.RecordKindLead:
		fmt.Fprintln(w, "CREATED\tEMAIL\tNAME\tNOTES")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CreatedAt, r.Email, r.Name, r.Notes)
		}
	default:
		fmt.Fprintln(w, "CREATED\tQUESTION")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\n", r.CreatedAt, r.Question)
		}
	}
	return w.Flush()
}
