// Package config loads agenttrace settings from a YAML file, then applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Storage     StorageConfig     `yaml:"storage"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Transcript  TranscriptConfig  `yaml:"transcript"`
	Diagram     DiagramConfig     `yaml:"diagram"`
	Website     WebsiteConfig     `yaml:"website"`
	CSV         CSVConfig         `yaml:"csv"`
	Log         LogConfig         `yaml:"log"`
}

// AgentConfig identifies the remote agent. A runtime ARN or name selects
// an AgentCore runtime instead of a Bedrock agent alias.
type AgentConfig struct {
	ID          string `yaml:"id"`
	AliasID     string `yaml:"alias_id"`
	Region      string `yaml:"region"`
	RuntimeARN  string `yaml:"runtime_arn"`
	RuntimeName string `yaml:"runtime_name"`
}

// UsesRuntime reports whether an AgentCore runtime is configured.
func (a AgentConfig) UsesRuntime() bool {
	return a.RuntimeARN != "" || a.RuntimeName != ""
}

// StorageConfig says where artifacts go.
type StorageConfig struct {
	ImageDir string `yaml:"image_dir"`
	FileDir  string `yaml:"file_dir"`
	// Bucket receives chat attachments and generated diagrams.
	Bucket       string `yaml:"bucket"`
	UploadPrefix string `yaml:"upload_prefix"`
	// GCSBucket, when set, stores generated diagrams in Cloud Storage
	// instead of S3.
	GCSBucket string `yaml:"gcs_bucket"`
}

// InterpreterConfig tunes event interpretation.
type InterpreterConfig struct {
	FullText        bool `yaml:"full_text"`
	RepeatThreshold int  `yaml:"repeat_threshold"`
}

// TranscriptConfig controls chat persistence.
type TranscriptConfig struct {
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DiagramConfig configures the diagram generator.
type DiagramConfig struct {
	Model        string        `yaml:"model"`
	MappingFile  string        `yaml:"mapping_file"`
	Python       string        `yaml:"python"`
	WorkDir      string        `yaml:"work_dir"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// WebsiteConfig configures the website-to-text function.
type WebsiteConfig struct {
	ReaderURL string `yaml:"reader_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
}

// CSVConfig names the default object counted by count_csv_rows.
type CSVConfig struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Agent: AgentConfig{AliasID: "TSTALIASID", Region: "us-east-1"},
		Storage: StorageConfig{
			ImageDir:     "images",
			FileDir:      ".",
			UploadPrefix: "uploaded_images",
		},
		Transcript: TranscriptConfig{Path: "agenttrace.db", HistoryLimit: 100},
		Diagram: DiagramConfig{
			Model:        "bedrock:anthropic.claude-3-sonnet-20240229-v1:0",
			Python:       "python3",
			Timeout:      2 * time.Minute,
			MaxAttempts:  3,
			InitialDelay: time.Second,
		},
		Website: WebsiteConfig{
			ReaderURL: "https://r.jina.ai/",
			Model:     "bedrock:anthropic.claude-3-haiku-20240307-v1:0",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables. Set but empty
// variables are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("AGENT_ID", &c.Agent.ID)
	str("AGENT_ALIAS_ID", &c.Agent.AliasID)
	str("AWS_REGION", &c.Agent.Region)
	str("AGENT_RUNTIME_ARN", &c.Agent.RuntimeARN)
	str("AGENT_RUNTIME_NAME", &c.Agent.RuntimeName)
	str("S3_BUCKET_NAME", &c.Storage.Bucket)
	str("IMAGE_FOLDER", &c.Storage.ImageDir)
	str("GCS_BUCKET", &c.Storage.GCSBucket)
	str("JINA_KEY", &c.Website.APIKey)
	str("S3_BUCKET", &c.CSV.Bucket)
	str("S3_OBJECT", &c.CSV.Key)
	str("AGENTTRACE_TRANSCRIPT", &c.Transcript.Path)

	if v, ok := lookup("AGENTTRACE_FULL_TEXT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AGENTTRACE_FULL_TEXT: %w", err)
		}
		c.Interpreter.FullText = b
	}
	return nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Interpreter.RepeatThreshold < -1 {
		errs = append(errs, fmt.Errorf("interpreter.repeat_threshold must be >= -1, got %d", c.Interpreter.RepeatThreshold))
	}
	if c.Transcript.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("transcript.history_limit must be >= 0, got %d", c.Transcript.HistoryLimit))
	}
	if c.Diagram.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("diagram.max_attempts must be >= 1, got %d", c.Diagram.MaxAttempts))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireAgent reports an error unless an agent ID or AgentCore runtime is
// configured.
func (c Config) RequireAgent() error {
	if c.Agent.ID == "" && !c.Agent.UsesRuntime() {
		return errors.New("agent not configured: set agent.id, agent.runtime_arn or agent.runtime_name (AGENT_ID, AGENT_RUNTIME_ARN, AGENT_RUNTIME_NAME)")
	}
	return nil
}
