package transfer

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// uniqueName inserts a random suffix before name's extension:
// report.txt becomes report_1b4e28ba.txt.
func uniqueName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return stem + "_" + suffix + ext
}

// convertText normalises CRLF line endings to LF, then to CRLF again
// when goos is windows.
func convertText(b []byte, goos string) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	if goos == "windows" {
		b = bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
	}
	return b
}
