package constants

import "strings"

// DocumentExt is the extension the inbox scanner processes. SidecarExt files
// are never processed on their own; they ride along with their document.
const (
	DocumentExt = "pdf"
	SidecarExt  = "xml"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
