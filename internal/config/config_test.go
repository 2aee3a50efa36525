package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv(map[string]string{}, "")
	require.NoError(t, err)
	require.False(t, cfg.DemoMode)
	require.Equal(t, "*", cfg.CorsAllowOrigin)
	require.Equal(t, "endpoint", cfg.CalendarTokenMintingPath)
	require.Equal(t, "studybuddy/1.0", cfg.CanvasUserAgent)
	require.Contains(t, cfg.CanvasAllowedMaterialContentType, "application/pdf")
	require.Equal(t, "./studybuddy.db", cfg.StateDBPath)
}

func TestLoadFromEnv_EnvOverridesEverything(t *testing.T) {
	env := map[string]string{
		"DEMO_MODE":                     "true",
		"DEMO_USER_ID":                  "demo-123",
		"CORS_ALLOW_ORIGIN":             "https://app.example.com",
		"CANVAS_MAX_FILE_BYTES":         "1048576",
		"CANVAS_ALLOWED_MATERIAL_CONTENT_TYPES": "application/pdf,text/plain",
	}
	cfg, err := LoadFromEnv(env, "")
	require.NoError(t, err)
	require.True(t, cfg.DemoMode)
	require.Equal(t, "demo-123", cfg.DemoUserID)
	require.Equal(t, "https://app.example.com", cfg.CorsAllowOrigin)
	require.EqualValues(t, 1048576, cfg.CanvasMaxFileBytes)
	require.Equal(t, []string{"application/pdf", "text/plain"}, cfg.CanvasAllowedMaterialContentType)
}

func TestLoadFromEnv_FileDefaultsUnderlayEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "studybuddy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
demo_mode = true
demo_user_id = "from-file"
cors_allow_origin = "https://from-file.example.com"
`), 0o644))

	cfg, err := LoadFromEnv(map[string]string{}, path)
	require.NoError(t, err)
	require.True(t, cfg.DemoMode)
	require.Equal(t, "from-file", cfg.DemoUserID)

	cfg, err = LoadFromEnv(map[string]string{"DEMO_USER_ID": "from-env"}, path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.DemoUserID)
}

func TestLoadFromEnv_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFromEnv(map[string]string{}, "/nonexistent/path/studybuddy.toml")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadFromEnv_RejectsUnknownMintingPath(t *testing.T) {
	_, err := LoadFromEnv(map[string]string{"CALENDAR_TOKEN_MINTING_PATH": "bogus"}, "")
	require.Error(t, err)
}

func TestLoadFromEnv_EnvPathRequiresToken(t *testing.T) {
	_, err := LoadFromEnv(map[string]string{"CALENDAR_TOKEN_MINTING_PATH": "env"}, "")
	require.Error(t, err)

	cfg, err := LoadFromEnv(map[string]string{
		"CALENDAR_TOKEN_MINTING_PATH": "env",
		"CALENDAR_TOKEN":              "secret-token",
	}, "")
	require.NoError(t, err)
	require.Equal(t, "secret-token", cfg.CalendarToken)
}

func TestConfig_KnowledgeBaseDataSourceIDResolved(t *testing.T) {
	cfg, err := LoadFromEnv(map[string]string{}, "")
	require.NoError(t, err)
	require.Equal(t, "legacy-id", cfg.KnowledgeBaseDataSourceIDResolved("legacy-id"))

	cfg, err = LoadFromEnv(map[string]string{"KNOWLEDGE_BASE_DATA_SOURCE_ID": "new-id"}, "")
	require.NoError(t, err)
	require.Equal(t, "new-id", cfg.KnowledgeBaseDataSourceIDResolved("legacy-id"))
}

func TestConfig_Clone(t *testing.T) {
	cfg, err := LoadFromEnv(map[string]string{}, "")
	require.NoError(t, err)
	clone := cfg.Clone()
	clone.CanvasAllowedMaterialContentType[0] = "mutated"
	require.NotEqual(t, cfg.CanvasAllowedMaterialContentType[0], clone.CanvasAllowedMaterialContentType[0])
}
