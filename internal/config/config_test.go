package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  http_port: 9000
  tps: 10
storage:
  backend: sqlite
  path: data/mines.db
eventbus:
  url: nats://127.0.0.1:4222
  retention_hours: 2
holograms:
  enabled: false
api:
  jwt_secret: s3cret
  accounts:
    - name: admin
      password_hash: $2a$10$abcdefghijklmnopqrstuv
      admin: true
webhooks:
  - name: discord
    url: http://127.0.0.1:9/hook
    events: ["*"]
materials:
  - ancient_debris
templates:
  DIAMOND_MINE:
    width: 15
    depth: 9
    reset_percent: 25
    border: bedrock
    interaction_block: BEACON
    composition:
      STONE: 70
      diamond ore: 30
  DEBRIS_MINE:
    label: Netherite
    width: 5
    depth: 5
    reset_percent: 10
    composition:
      ANCIENT_DEBRIS: 1
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.GetHTTPPort())
	assert.Equal(t, 10, cfg.Server.GetTPS())
	assert.Equal(t, 20, cfg.Server.GetStartupResetTicks())
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
	assert.False(t, cfg.Holograms.Enabled)
	assert.Equal(t, "s3cret", cfg.API.JWTSecret)
	require.Len(t, cfg.API.Accounts, 1)
	assert.True(t, cfg.API.Accounts[0].Admin)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"*"}, cfg.Webhooks[0].Events)
	assert.Equal(t, 2*60*60.0, cfg.EventBus.RetentionDuration().Seconds())
	assert.Equal(t, []string{"DEBRIS_MINE", "DIAMOND_MINE"}, cfg.TemplateNames())

	templates, err := cfg.MineTemplates()
	require.NoError(t, err)

	diamond := templates["DIAMOND_MINE"]
	assert.Equal(t, "Diamond Mine", diamond.Label)
	assert.Equal(t, 15, diamond.Width)
	assert.Equal(t, 9, diamond.Depth)
	assert.Equal(t, world.Bedrock, diamond.Border)
	assert.Equal(t, world.Beacon, diamond.InteractionBlock)
	assert.Equal(t, 70.0, diamond.Composition[world.Stone])
	assert.Equal(t, 30.0, diamond.Composition[world.DiamondOre])

	debris := templates["DEBRIS_MINE"]
	assert.Equal(t, "Netherite", debris.Label)
	assert.Equal(t, world.Bedrock, debris.Border, "материал стен по умолчанию")
	assert.True(t, world.IsKnownMaterial("ANCIENT_DEBRIS"))
}

func TestParse_InvalidTemplates(t *testing.T) {
	cases := map[string]string{
		"zero width": `
templates:
  BAD:
    width: 0
    depth: 5
    composition: {STONE: 1}
`,
		"unknown material": `
templates:
  BAD:
    width: 5
    depth: 5
    composition: {UNOBTAINIUM: 1}
`,
		"empty composition": `
templates:
  BAD:
    width: 5
    depth: 5
`,
		"percent out of range": `
templates:
  BAD:
    width: 5
    depth: 5
    reset_percent: 150
    composition: {STONE: 1}
`,
		"broken yaml": "templates: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte(cases["zero width"]))
	assert.ErrorIs(t, err, geometry.ErrInvalidTemplate)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plotmines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Templates, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultsWithoutPath(t *testing.T) {
	t.Setenv("PLOTMINES_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.True(t, cfg.Holograms.Enabled)

	templates, err := cfg.MineTemplates()
	require.NoError(t, err)
	assert.Contains(t, templates, "STONE_MINE")
}

func TestPortEnvFallback(t *testing.T) {
	t.Setenv("PLOTMINES_HTTP_PORT", "7070")
	t.Setenv("PLOTMINES_METRICS_PORT", "not-a-number")

	var s ServerConfig
	assert.Equal(t, 7070, s.GetHTTPPort())
	assert.Equal(t, 2112, s.GetMetricsPort())

	s.HTTPPort = 8000
	assert.Equal(t, 8000, s.GetHTTPPort())
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "Diamond Mine", FormatLabel("DIAMOND_MINE"))
	assert.Equal(t, "Stone", FormatLabel("stone"))
	assert.Equal(t, "Deep Iron Mine", FormatLabel("deep-iron__mine"))
	assert.Equal(t, "", FormatLabel(""))
}
