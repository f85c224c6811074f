package profile

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clashflux-go/internal/config"
)

const plainProfile = `port: 7891
socks-port: 7892
mixed-port: 7893
external-controller: 0.0.0.0:9090
mode: rule
proxies:
  - name: node-a
    type: ss
    server: 1.2.3.4
`

func TestSanitizeNeutralizesManagedDirectives(t *testing.T) {
	out := string(Sanitize([]byte(plainProfile)))

	assert.Contains(t, out, "# port: 7891")
	assert.Contains(t, out, "# socks-port: 7892")
	assert.Contains(t, out, "# mixed-port: 7893")
	assert.Contains(t, out, "# external-controller: 0.0.0.0:9090")
	// Non-managed lines are untouched.
	assert.Contains(t, out, "\nmode: rule\n")
	assert.Contains(t, out, "name: node-a")
}

func TestSanitizeAppendsControlPlaneBlockLast(t *testing.T) {
	out := string(Sanitize([]byte(plainProfile)))

	require.True(t, strings.HasSuffix(out, config.FixedBlock))
	assert.Contains(t, out, "external-controller: 127.0.0.1:9097")
	assert.Contains(t, out, "mixed-port: 7890")
}

func TestSanitizeDecodesBase64Bodies(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(plainProfile))

	out := string(Sanitize([]byte(encoded + "\n")))

	assert.Contains(t, out, "name: node-a")
	assert.Contains(t, out, "# port: 7891")
	assert.True(t, strings.HasSuffix(out, config.FixedBlock))
}

func TestSanitizeLeavesPlainYAMLUndecoded(t *testing.T) {
	// Contains the plain marker, so no base64 attempt even though the body
	// happens to be valid base64 alphabet.
	body := "proxies:\n"
	out := string(Sanitize([]byte(body)))
	assert.True(t, strings.HasPrefix(out, "proxies:\n"))
}

func TestSanitizeIndentedDirectivesAreNotManaged(t *testing.T) {
	body := "listeners:\n  port: 1234\nproxies: []\n"
	out := string(Sanitize([]byte(body)))
	assert.Contains(t, out, "\n  port: 1234\n")
	assert.NotContains(t, out, "#   port: 1234")
}
