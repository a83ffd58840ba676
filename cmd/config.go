package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "crev"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage crev configuration.

Running bare 'crev config' is the same as 'crev config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# crev configuration
# See: crev config show (for effective values and sources)

# State/data directory (default: ~/.config/crev)
# state_dir: {{ .StateDir }}

# SQLite database path for saved reports (default: ~/.config/crev/crev.db)
# db_path: {{ .DBPath }}

llm:
  # Backend: "anthropic" or "openai"
  provider: "{{ .Provider }}"

  # Model name; empty uses the provider default
  model: "{{ .Model }}"

  temperature: {{ .Temperature }}
  max_tokens: {{ .MaxTokens }}
  timeout: "{{ .Timeout }}"

# API keys may also come from ANTHROPIC_API_KEY / OPENAI_API_KEY.
anthropic:
  api_key: ""
openai:
  api_key: ""
  base_url: "{{ .OpenAIBaseURL }}"

review:
  # Files reviewed concurrently
  workers: {{ .Workers }}

  # Longer files are truncated before being sent to the model
  max_content_bytes: {{ .MaxContentBytes }}

  # Mask likely credentials before sending code to the model
  redact_secrets: {{ .RedactSecrets }}

upload:
  max_archive_bytes: {{ .MaxArchiveBytes }}
  max_upload_mb: {{ .MaxUploadMB }}

server:
  port: {{ .Port }}
  allowed_origins:
{{- range .AllowedOrigins }}
    - "{{ . }}"
{{- end }}

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # text or json
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	StateDir        string
	DBPath          string
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         string
	OpenAIBaseURL   string
	Workers         int
	MaxContentBytes int
	RedactSecrets   bool
	MaxArchiveBytes int64
	MaxUploadMB     int
	Port            int
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data := configTemplateData{
		StateDir:        viper.GetString("state_dir"),
		DBPath:          viper.GetString("db_path"),
		Provider:        viper.GetString("llm.provider"),
		Model:           viper.GetString("llm.model"),
		Temperature:     viper.GetFloat64("llm.temperature"),
		MaxTokens:       viper.GetInt("llm.max_tokens"),
		Timeout:         viper.GetString("llm.timeout"),
		OpenAIBaseURL:   viper.GetString("openai.base_url"),
		Workers:         viper.GetInt("review.workers"),
		MaxContentBytes: viper.GetInt("review.max_content_bytes"),
		RedactSecrets:   viper.GetBool("review.redact_secrets"),
		MaxArchiveBytes: viper.GetInt64("upload.max_archive_bytes"),
		MaxUploadMB:     viper.GetInt("upload.max_upload_mb"),
		Port:            viper.GetInt("server.port"),
		AllowedOrigins:  viper.GetStringSlice("server.allowed_origins"),
		LogLevel:        viper.GetString("log.level"),
		LogFormat:       viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "CREV_STATE_DIR"},
	{Key: "db_path", EnvVar: "CREV_DB_PATH"},
	{Key: "llm.provider", EnvVar: "CREV_LLM_PROVIDER"},
	{Key: "llm.model", EnvVar: "CREV_LLM_MODEL"},
	{Key: "llm.temperature", EnvVar: "CREV_LLM_TEMPERATURE"},
	{Key: "llm.max_tokens", EnvVar: "CREV_LLM_MAX_TOKENS"},
	{Key: "llm.timeout", EnvVar: "CREV_LLM_TIMEOUT"},
	{Key: "anthropic.api_key", EnvVar: "CREV_ANTHROPIC_API_KEY", Secret: true},
	{Key: "openai.api_key", EnvVar: "CREV_OPENAI_API_KEY", Secret: true},
	{Key: "openai.base_url", EnvVar: "CREV_OPENAI_BASE_URL"},
	{Key: "review.workers", EnvVar: "CREV_REVIEW_WORKERS"},
	{Key: "review.max_content_bytes", EnvVar: "CREV_REVIEW_MAX_CONTENT_BYTES"},
	{Key: "review.redact_secrets", EnvVar: "CREV_REVIEW_REDACT_SECRETS"},
	{Key: "upload.max_archive_bytes", EnvVar: "CREV_UPLOAD_MAX_ARCHIVE_BYTES"},
	{Key: "upload.max_upload_mb", EnvVar: "CREV_UPLOAD_MAX_UPLOAD_MB"},
	{Key: "server.port", EnvVar: "CREV_SERVER_PORT"},
	{Key: "server.allowed_origins", EnvVar: "CREV_SERVER_ALLOWED_ORIGINS"},
	{Key: "log.level", EnvVar: "CREV_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "CREV_LOG_FORMAT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret keeps the last four characters of a non-empty key.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'crev config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
