// Package config assembles the service's runtime configuration from
// environment variables (spec §6), optionally layered on top of defaults
// read from a local TOML file for development ergonomics. Environment
// variables always win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "20s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// fileDefaults is the optional local-dev TOML underlay. Every field here has
// an environment-variable equivalent in Config; the file only ever seeds a
// default that an explicitly-set env var overrides.
type fileDefaults struct {
	DemoMode               *bool    `toml:"demo_mode"`
	DemoUserID             *string  `toml:"demo_user_id"`
	CorsAllowOrigin        *string  `toml:"cors_allow_origin"`
	PublicBaseURL          *string  `toml:"public_base_url"`
	CalendarFixtureFallback *bool   `toml:"calendar_fixture_fallback"`
}

// Config is the single assembled configuration record passed explicitly
// into every component, generalizing spec §9's "manual global configuration
// via environment variables" into one record built once at startup.
type Config struct {
	DemoMode   bool
	DemoUserID string

	CorsAllowOrigin  string
	CorsAllowMethods string
	CorsAllowHeaders string

	CalendarTokensTable string
	CanvasDataTable     string
	DocsTable           string
	CardsTable          string
	UploadsBucket       string

	KnowledgeBaseID           string
	KnowledgeBaseDataSourceID string
	BedrockModelID            string
	BedrockModelARN           string
	BedrockGuardrailID        string
	BedrockGuardrailVersion   string

	IngestStateMachineARN string

	CanvasUserAgent                  string
	CanvasMaxFileBytes               int64
	CanvasMaxFilesPerCourse          int
	CanvasMaxFilesTotal              int
	CanvasAllowedMaterialContentType []string

	PublicBaseURL           string
	CalendarFixtureFallback bool

	CalendarTokenMintingPath string
	CalendarToken            string
	CalendarTokenUserID      string

	StateDBPath string
	LogLevel    string
	Bind        string

	LockFilePath string

	TemporalHostPort string

	ObjectStoreBackend string
	ObjectStoreDir     string

	KBVecDBPath    string
	KBEmbeddingDim int

	ModelMCPCommand  string
	ModelMCPArgs     []string
	ModelMCPToolName string
}

// KnowledgeBaseDataSourceIDResolved returns KNOWLEDGE_BASE_DATA_SOURCE_ID,
// falling back to the legacy DATA_SOURCE_ID alias spec §6 preserves.
func (c *Config) KnowledgeBaseDataSourceIDResolved(legacyDataSourceID string) string {
	if c.KnowledgeBaseDataSourceID != "" {
		return c.KnowledgeBaseDataSourceID
	}
	return legacyDataSourceID
}

// Clone returns a deep-enough copy for safe concurrent hand-off via Manager.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.CanvasAllowedMaterialContentType = append([]string(nil), c.CanvasAllowedMaterialContentType...)
	clone.ModelMCPArgs = append([]string(nil), c.ModelMCPArgs...)
	return &clone
}

func getenv(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(env map[string]string, key string, fallback bool) bool {
	v, ok := env[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt64(env map[string]string, key string, fallback int64) int64 {
	v, ok := env[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt(env map[string]string, key string, fallback int) int {
	return int(getenvInt64(env, key, int64(fallback)))
}

// Load assembles Config from the process environment, optionally layering a
// TOML file's defaults underneath it first. filePath may be empty.
func Load(filePath string) (*Config, error) {
	return LoadFromEnv(envToMap(os.Environ()), filePath)
}

// LoadFromEnv is Load with an explicit environment map, for tests.
func LoadFromEnv(env map[string]string, filePath string) (*Config, error) {
	defaults := fileDefaults{}
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			if _, err := toml.DecodeFile(filePath, &defaults); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", filePath, err)
			}
		}
	}

	cfg := &Config{
		DemoMode:   getenvBool(env, "DEMO_MODE", boolDefault(defaults.DemoMode, false)),
		DemoUserID: getenv(env, "DEMO_USER_ID", strDefault(defaults.DemoUserID, "")),

		CorsAllowOrigin:  getenv(env, "CORS_ALLOW_ORIGIN", strDefault(defaults.CorsAllowOrigin, "*")),
		CorsAllowMethods: getenv(env, "CORS_ALLOW_METHODS", "GET,POST,OPTIONS"),
		CorsAllowHeaders: getenv(env, "CORS_ALLOW_HEADERS", "Content-Type,Authorization,X-Amz-Date,X-Api-Key,X-Amz-Security-Token"),

		CalendarTokensTable: getenv(env, "CALENDAR_TOKENS_TABLE", ""),
		CanvasDataTable:     getenv(env, "CANVAS_DATA_TABLE", ""),
		DocsTable:           getenv(env, "DOCS_TABLE", ""),
		CardsTable:          getenv(env, "CARDS_TABLE", ""),
		UploadsBucket:       getenv(env, "UPLOADS_BUCKET", ""),

		KnowledgeBaseID:           getenv(env, "KNOWLEDGE_BASE_ID", ""),
		KnowledgeBaseDataSourceID: getenv(env, "KNOWLEDGE_BASE_DATA_SOURCE_ID", ""),
		BedrockModelID:            getenv(env, "BEDROCK_MODEL_ID", ""),
		BedrockModelARN:           getenv(env, "BEDROCK_MODEL_ARN", ""),
		BedrockGuardrailID:        getenv(env, "BEDROCK_GUARDRAIL_ID", ""),
		BedrockGuardrailVersion:   getenv(env, "BEDROCK_GUARDRAIL_VERSION", ""),

		IngestStateMachineARN: getenv(env, "INGEST_STATE_MACHINE_ARN", ""),

		CanvasUserAgent:         getenv(env, "CANVAS_USER_AGENT", "studybuddy/1.0"),
		CanvasMaxFileBytes:      getenvInt64(env, "CANVAS_MAX_FILE_BYTES", 25*1024*1024),
		CanvasMaxFilesPerCourse: getenvInt(env, "CANVAS_MAX_FILES_PER_COURSE", 25),
		CanvasMaxFilesTotal:     getenvInt(env, "CANVAS_MAX_FILES_TOTAL", 200),

		PublicBaseURL:           getenv(env, "PUBLIC_BASE_URL", strDefault(defaults.PublicBaseURL, "")),
		CalendarFixtureFallback: getenvBool(env, "CALENDAR_FIXTURE_FALLBACK", boolDefault(defaults.CalendarFixtureFallback, false)),

		CalendarTokenMintingPath: getenv(env, "CALENDAR_TOKEN_MINTING_PATH", "endpoint"),
		CalendarToken:            getenv(env, "CALENDAR_TOKEN", ""),
		CalendarTokenUserID:      getenv(env, "CALENDAR_TOKEN_USER_ID", ""),

		StateDBPath: getenv(env, "STATE_DB", "./studybuddy.db"),
		LogLevel:    getenv(env, "LOG_LEVEL", "info"),
		Bind:        getenv(env, "BIND", "127.0.0.1:8080"),

		LockFilePath: getenv(env, "LOCK_FILE", "/tmp/studybuddyd.lock"),

		TemporalHostPort: getenv(env, "TEMPORAL_HOST_PORT", "localhost:7233"),

		ObjectStoreBackend: getenv(env, "OBJECT_STORE_BACKEND", "local"),
		ObjectStoreDir:     getenv(env, "OBJECT_STORE_DIR", "./studybuddy-objects"),

		KBVecDBPath:    getenv(env, "KB_VEC_DB_PATH", "./studybuddy-kb.db"),
		KBEmbeddingDim: getenvInt(env, "KB_EMBEDDING_DIM", 256),

		ModelMCPCommand:  getenv(env, "MODEL_MCP_COMMAND", "studybuddy-model-mcp"),
		ModelMCPToolName: getenv(env, "MODEL_MCP_TOOL", "generate"),
	}

	if args := getenv(env, "MODEL_MCP_ARGS", ""); args != "" {
		for _, a := range strings.Split(args, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.ModelMCPArgs = append(cfg.ModelMCPArgs, a)
			}
		}
	}

	allowed := getenv(env, "CANVAS_ALLOWED_MATERIAL_CONTENT_TYPES",
		"application/pdf,text/plain,"+
			"application/vnd.openxmlformats-officedocument.presentationml.presentation,"+
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document,"+
			"application/msword")
	for _, ct := range strings.Split(allowed, ",") {
		ct = strings.TrimSpace(strings.ToLower(ct))
		if ct != "" {
			cfg.CanvasAllowedMaterialContentType = append(cfg.CanvasAllowedMaterialContentType, ct)
		}
	}

	if cfg.CalendarTokenMintingPath != "endpoint" && cfg.CalendarTokenMintingPath != "env" {
		return nil, fmt.Errorf("config: CALENDAR_TOKEN_MINTING_PATH must be 'endpoint' or 'env', got %q", cfg.CalendarTokenMintingPath)
	}
	if cfg.CalendarTokenMintingPath == "env" && cfg.CalendarToken == "" {
		return nil, fmt.Errorf("config: CALENDAR_TOKEN is required when CALENDAR_TOKEN_MINTING_PATH=env")
	}

	return cfg, nil
}

func boolDefault(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}

func strDefault(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return m
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
