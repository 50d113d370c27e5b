// Package config defines the command-line flags and resolves them into a
// Config. Every flag can also be set from the environment or from a YAML
// file named by --config; precedence is flag, env, YAML, default.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const configEnv = "PROFILE_ASSISTANT_CONFIG"

type Config struct {
	Addr      string
	Name      string
	Model     string
	OpenAIKey string
	OpenAIURL string

	PushoverToken string
	PushoverUser  string

	SummaryPath  string
	ResumePath   string
	LinkedInPath string

	ParamPrefix  string
	RecordsTable string

	MaxToolRounds    int
	MaxMessageLength int
	LLMTimeout       time.Duration
	NotifyTimeout    time.Duration

	Verbose   bool
	LogFormat string
}

// YamlSource implements cli.ValueSource for one key of a YAML document.
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	v, ok := y.data[y.key]
	if !ok || v == nil {
		return "", false
	}
	if slice, ok := v.([]any); ok {
		strs := make([]string, 0, len(slice))
		for _, item := range slice {
			strs = append(strs, fmt.Sprintf("%v", item))
		}
		return strings.Join(strs, ","), true
	}
	return fmt.Sprintf("%v", v), true
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

// ReadYAML loads the config file at path. An empty path yields no data.
func ReadYAML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return data, nil
}

// ConfigPath finds --config before the command line is parsed, since the
// YAML values have to be wired into the flag definitions themselves.
func ConfigPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return os.Getenv(configEnv)
}

// Flags returns the global flags, with data (possibly nil) as the YAML layer.
func Flags(data map[string]any) []cli.Flag {
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if data != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: data, key: key})
		}
		return chain
	}

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "read flag values from this YAML file", Sources: cli.EnvVars(configEnv)},

		// Serving
		&cli.StringFlag{Name: "addr", Value: "0.0.0.0:7860", Usage: "listen address for the HTTP server", Sources: src("addr", "PROFILE_ASSISTANT_ADDR")},
		&cli.StringFlag{Name: "name", Usage: "the person the assistant speaks for", Sources: src("name", "PROFILE_ASSISTANT_NAME")},
		&cli.IntFlag{Name: "max-tool-rounds", Value: 8, Usage: "tool-requesting model rounds allowed per message", Sources: src("max-tool-rounds", "PROFILE_ASSISTANT_MAX_TOOL_ROUNDS")},
		&cli.IntFlag{Name: "max-message-length", Value: 4000, Usage: "longest accepted user message in bytes", Sources: src("max-message-length", "PROFILE_ASSISTANT_MAX_MESSAGE_LENGTH")},

		// LLM
		&cli.StringFlag{Name: "model", Value: "gpt-4o-mini", Usage: "chat completions model", Sources: src("model", "PROFILE_ASSISTANT_MODEL")},
		&cli.StringFlag{Name: "openai-key", Usage: "OpenAI API key", Sources: src("openai-key", "OPENAI_API_KEY")},
		&cli.StringFlag{Name: "openai-url", Usage: "OpenAI-compatible API base URL", Sources: src("openai-url", "OPENAI_BASE_URL")},
		&cli.DurationFlag{Name: "llm-timeout", Value: 60 * time.Second, Usage: "timeout for each completion request", Sources: src("llm-timeout", "PROFILE_ASSISTANT_LLM_TIMEOUT")},

		// Notifications
		&cli.StringFlag{Name: "pushover-token", Usage: "Pushover application token", Sources: src("pushover-token", "PUSHOVER_TOKEN")},
		&cli.StringFlag{Name: "pushover-user", Usage: "Pushover user key", Sources: src("pushover-user", "PUSHOVER_USER")},
		&cli.DurationFlag{Name: "notify-timeout", Value: 10 * time.Second, Usage: "timeout for each notification", Sources: src("notify-timeout", "PROFILE_ASSISTANT_NOTIFY_TIMEOUT")},

		// Documents
		&cli.StringFlag{Name: "summary-path", Value: "me/summary.txt", Usage: "plain-text profile summary", Sources: src("summary-path", "PROFILE_ASSISTANT_SUMMARY_PATH")},
		&cli.StringFlag{Name: "resume-path", Value: "me/resume.pdf", Usage: "resume PDF", Sources: src("resume-path", "PROFILE_ASSISTANT_RESUME_PATH")},
		&cli.StringFlag{Name: "linkedin-path", Value: "me/linkedin.pdf", Usage: "LinkedIn profile export PDF", Sources: src("linkedin-path", "PROFILE_ASSISTANT_LINKEDIN_PATH")},

		// AWS
		&cli.StringFlag{Name: "param-prefix", Usage: "SSM parameter prefix holding secrets not given directly", Sources: src("param-prefix", "PARAM_PREFIX")},
		&cli.StringFlag{Name: "records-table", Usage: "DynamoDB table for recorded leads and questions", Sources: src("records-table", "RECORDS_TABLE")},

		// Logging
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable debug logging", Sources: src("verbose", "PROFILE_ASSISTANT_VERBOSE")},
		&cli.StringFlag{Name: "log-format", Value: "text", Usage: "log output format: text or json", Sources: src("log-format", "PROFILE_ASSISTANT_LOG_FORMAT")},
	}
}

// FromCommand reads the resolved flag values.
func FromCommand(c *cli.Command) Config {
	return Config{
		Addr:             c.String("addr"),
		Name:             strings.TrimSpace(c.String("name")),
		Model:            c.String("model"),
		OpenAIKey:        c.String("openai-key"),
		OpenAIURL:        c.String("openai-url"),
		PushoverToken:    c.String("pushover-token"),
		PushoverUser:     c.String("pushover-user"),
		SummaryPath:      c.String("summary-path"),
		ResumePath:       c.String("resume-path"),
		LinkedInPath:     c.String("linkedin-path"),
		ParamPrefix:      strings.TrimRight(c.String("param-prefix"), "/"),
		RecordsTable:     c.String("records-table"),
		MaxToolRounds:    int(c.Int("max-tool-rounds")),
		MaxMessageLength: int(c.Int("max-message-length")),
		LLMTimeout:       c.Duration("llm-timeout"),
		NotifyTimeout:    c.Duration("notify-timeout"),
		Verbose:          c.Bool("verbose"),
		LogFormat:        c.String("log-format"),
	}
}

// Validate checks the settings every subcommand depends on.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log-format must be text or json, got %q", c.LogFormat)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("config: max-tool-rounds must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: max-message-length must be positive")
	}
	if c.LLMTimeout <= 0 || c.NotifyTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	return nil
}

// ValidateServe additionally checks what the chat server needs.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if c.OpenAIKey == "" && c.ParamPrefix == "" {
		return fmt.Errorf("config: openai-key or param-prefix is required")
	}
	return nil
}

// PushoverFromParamStore reports whether Pushover credentials still have to
// be looked up.
func (c Config) PushoverFromParamStore() bool {
	return c.ParamPrefix != "" && (c.PushoverToken == "" || c.PushoverUser == "")
}

// Param returns the full SSM name for a secret under the prefix.
func (c Config) Param(name string) string {
	return c.ParamPrefix + "/" + name
}
