package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdirectory/gateway/internal/ledger"
)

const tiktokYAML = `
name: TikTok Downloader
slug: tiktok-dl
host: localhost
port: 3001
pricing:
  type: fixed
  price: 0.005
api:
  "@post/download":
    input:
      type: json
      parameters:
        url:
          type: string
          required: true
`

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "tiktok-dl.yaml", tiktokYAML)
	writeDefinition(t, dir, "notes.txt", "not a definition")
	t.Setenv("TIKTOK_DL_ENABLED", "true")

	defs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "tiktok-dl", d.Slug)
	assert.True(t, d.Enabled)
	assert.Equal(t, ledger.FromUSD(0.005), d.PricePerCall())
}

func TestLoad_DisabledByDefault(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "tiktok-dl.yaml", tiktokYAML)

	defs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.False(t, defs[0].Enabled)
}

func TestLoad_RejectsUnsupportedPricing(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad.yaml", `
name: Bad
slug: bad
port: 3001
pricing:
  type: metered
  price: 0.005
api: {}
`)

	_, err := Load(dir)
	assert.ErrorContains(t, err, "unsupported pricing type")
}

func TestLoad_RejectsMalformedAPIPath(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad.yaml", `
name: Bad
slug: bad
port: 3001
pricing:
  type: fixed
  price: 0.005
api:
  "download":
    input:
      type: json
      parameters: {}
`)

	_, err := Load(dir)
	assert.ErrorContains(t, err, "malformed api path")
}

func testDefinition(enabled bool) *Definition {
	return &Definition{
		Name:    "TikTok Downloader",
		Slug:    "tiktok-dl",
		Host:    "localhost",
		Port:    3001,
		Enabled: enabled,
		Pricing: Pricing{Type: "fixed", Price: 0.005},
		API: map[string]Endpoint{
			"@post/download": {
				Input: Input{
					Type: InputJSON,
					Parameters: map[string]Parameter{
						"url": {Type: "string", Required: true},
					},
				},
			},
		},
	}
}

func TestResolve(t *testing.T) {
	r, err := New([]*Definition{testDefinition(true)})
	require.NoError(t, err)

	d, err := r.Resolve("tiktok-dl")
	require.NoError(t, err)
	assert.Equal(t, "tiktok-dl", d.Slug)

	_, err = r.Resolve("unknown-provider")
	assert.True(t, errors.Is(err, ErrProviderNotFound))
}

func TestResolve_DisabledProviderStillResolves(t *testing.T) {
	r, err := New([]*Definition{testDefinition(false)})
	require.NoError(t, err)

	d, err := r.Resolve("tiktok-dl")
	require.NoError(t, err)
	assert.False(t, d.Enabled)
}

func TestResolveEndpoint(t *testing.T) {
	r, err := New([]*Definition{testDefinition(true)})
	require.NoError(t, err)
	d, err := r.Resolve("tiktok-dl")
	require.NoError(t, err)

	ep, err := r.ResolveEndpoint(d, "POST", "download")
	require.NoError(t, err)
	assert.Equal(t, InputJSON, ep.Input.Type)

	// Leading and trailing slashes in the sub-path are irrelevant.
	_, err = r.ResolveEndpoint(d, "POST", "/download/")
	assert.NoError(t, err)

	_, err = r.ResolveEndpoint(d, "GET", "download")
	assert.True(t, errors.Is(err, ErrPathNotFound))

	_, err = r.ResolveEndpoint(d, "POST", "nope")
	assert.True(t, errors.Is(err, ErrPathNotFound))
}

func TestNew_DuplicateSlug(t *testing.T) {
	_, err := New([]*Definition{testDefinition(true), testDefinition(true)})
	assert.ErrorContains(t, err, "duplicate provider slug")
}
