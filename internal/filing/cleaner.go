package filing

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Pre-compiled expressions for markup stripping. Order matters: container
// elements whose contents are noise go first, then remaining tags, then
// whitespace normalisation.
var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	xbrlHidden    = regexp.MustCompile(`(?is)<ix:header[^>]*>.*?</ix:header>`)
	blockElements = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section)>`)
	brTags        = regexp.MustCompile(`(?i)<br\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t\x{00a0}]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Cleaner reduces raw filing markup to plain analyzable text. It is pure and
// deterministic; the same input always yields the same output.
type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Clean strips markup and boilerplate from raw content. Extraction is
// best-effort: unknown or broken markup degrades to tag stripping rather than
// failing, but an input that reduces to nothing at all is reported as
// unparseable instead of silently returning an empty document.
func (c *Cleaner) Clean(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty input", ErrClean)
	}

	text := raw
	text = xbrlHidden.ReplaceAllString(text, "")
	text = scriptTag.ReplaceAllString(text, "")
	text = styleTag.ReplaceAllString(text, "")
	text = noscriptTag.ReplaceAllString(text, "")
	text = headTag.ReplaceAllString(text, "")
	text = htmlComments.ReplaceAllString(text, "")
	text = brTags.ReplaceAllString(text, "\n")
	text = blockElements.ReplaceAllString(text, "\n")
	text = allTags.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	text = multiSpaces.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("%w: no text content after stripping markup", ErrClean)
	}
	return text, nil
}
