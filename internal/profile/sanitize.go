package profile

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"strings"

	"clashflux-go/internal/config"
)

// directiveMarker indicates the body is already plain YAML. Subscription
// endpoints that return base64 never contain it.
const directiveMarker = "proxies:"

// managedDirectives are the top-level keys the supervisor owns. Whatever a
// downloaded profile sets for them is commented out and replaced by the
// fixed control-plane block.
var managedDirectives = []string{
	"port:",
	"socks-port:",
	"mixed-port:",
	"external-controller:",
}

// Sanitize normalizes a downloaded profile body into a document the kernel
// can be pointed at: base64 payloads are decoded, managed directives are
// neutralized, and the fixed control-plane block is appended last so it wins.
func Sanitize(raw []byte) []byte {
	body := decodeIfBase64(raw)

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if isManagedDirective(line) {
			out.WriteString("# ")
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	out.WriteString(config.FixedBlock)
	return out.Bytes()
}

func isManagedDirective(line string) bool {
	for _, prefix := range managedDirectives {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// decodeIfBase64 decodes bodies that lack the plain-YAML marker and decode
// cleanly; anything else passes through untouched.
func decodeIfBase64(raw []byte) []byte {
	if bytes.Contains(raw, []byte(directiveMarker)) {
		return raw
	}
	trimmed := strings.TrimSpace(string(raw))
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(trimmed); err == nil {
			return decoded
		}
	}
	return raw
}
