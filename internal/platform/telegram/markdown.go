// ABOUTME: Renders orchestrator markdown into Telegram's HTML subset.
// ABOUTME: Telegram rejects unknown tags, so everything else is rewritten out.

package telegram

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
)

// Telegram accepts only these tags in parse_mode=HTML.
var allowedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"a": true, "code": true, "pre": true, "blockquote": true,
}

var structureRewrites = strings.NewReplacer(
	"<strong>", "<b>", "</strong>", "</b>",
	"<em>", "<i>", "</em>", "</i>",
	"<del>", "<s>", "</del>", "</s>",
	"<h1>", "<b>", "</h1>", "</b>\n",
	"<h2>", "<b>", "</h2>", "</b>\n",
	"<h3>", "<b>", "</h3>", "</b>\n",
	"<h4>", "<b>", "</h4>", "</b>\n",
	"<h5>", "<b>", "</h5>", "</b>\n",
	"<h6>", "<b>", "</h6>", "</b>\n",
	"<li>", "• ", "</li>", "",
	"<p>", "", "</p>", "\n",
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"<!-- raw HTML omitted -->", "",
)

var (
	tagPattern   = regexp.MustCompile(`(?s)</?([a-zA-Z][a-zA-Z0-9]*)(\s[^>]*)?/?>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	trailingWS   = regexp.MustCompile(`[ \t]+\n`)
	codeLangAttr = regexp.MustCompile(`^<code class="language-[a-zA-Z0-9+_.-]*">`)
)

// renderHTML converts markdown to the HTML fragment Telegram accepts. On a
// conversion failure the text is sent escaped and unformatted instead.
func renderHTML(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return html.EscapeString(src)
	}

	out := structureRewrites.Replace(buf.String())

	out = tagPattern.ReplaceAllStringFunc(out, func(tag string) string {
		name := strings.ToLower(tagPattern.FindStringSubmatch(tag)[1])
		if !allowedTags[name] {
			return ""
		}
		// Attributes survive only where Telegram understands them: href on
		// links and the language class on fenced code blocks.
		if name == "a" || (name == "code" && codeLangAttr.MatchString(tag)) {
			return tag
		}
		if strings.HasPrefix(tag, "</") {
			return "</" + name + ">"
		}
		return "<" + name + ">"
	})

	out = trailingWS.ReplaceAllString(out, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
