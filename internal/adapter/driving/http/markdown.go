package httphandler

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Commit messages are written as plain text with line breaks that matter, so
// newlines render as <br>. Links open outside the app.
var (
	commitRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
	)
	commitPolicy = bluemonday.UGCPolicy().AddTargetBlankToFullyQualifiedLinks(true)
)

// trailerLine matches a git trailer such as "Signed-off-by: A <a@b.c>".
var trailerLine = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*-by: `)

// RenderCommitMessage converts a build's commit message to sanitized HTML,
// dropping the trailing block of git trailers. Empty input renders as "".
func RenderCommitMessage(msg string) string {
	msg = stripTrailers(strings.TrimSpace(msg))
	if msg == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := commitRenderer.Convert([]byte(msg), &buf); err != nil {
		return commitPolicy.Sanitize(msg)
	}
	return commitPolicy.Sanitize(buf.String())
}

// stripTrailers removes the last paragraph when every line of it is a
// "*-by:" trailer. A message that is only trailers is kept as is.
func stripTrailers(msg string) string {
	cut := strings.LastIndex(msg, "\n\n")
	if cut < 0 {
		return msg
	}
	for line := range strings.SplitSeq(msg[cut+2:], "\n") {
		if !trailerLine.MatchString(line) {
			return msg
		}
	}
	return strings.TrimSpace(msg[:cut])
}
