package channel

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ChatImage is an inline image lifted out of the HTML body.
type ChatImage struct {
	URL string
	Alt string
}

// ChatMessage is the chat-native rendering of an HTML body: mrkdwn text plus
// images that are posted as separate blocks after the text.
type ChatMessage struct {
	Text   string
	Images []ChatImage
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
	mrkdwnEsc  = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// FormatChat converts authored HTML into chat mrkdwn. Unknown tags are
// stripped and their text kept; script and style content is dropped.
func FormatChat(html string) (ChatMessage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("parse html: %w", err)
	}

	r := &chatRenderer{}
	r.walk(doc.Find("body"))

	text := r.b.String()
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(strings.TrimLeft(l, " "), " ")
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return ChatMessage{Text: strings.TrimSpace(text), Images: r.images}, nil
}

type chatRenderer struct {
	b      strings.Builder
	images []ChatImage
}

func (r *chatRenderer) walk(s *goquery.Selection) {
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		r.node(n)
	})
}

// inline renders the children of n on their own and returns the text.
func (r *chatRenderer) inline(n *goquery.Selection) string {
	sub := &chatRenderer{}
	sub.walk(n)
	r.images = append(r.images, sub.images...)
	return strings.TrimSpace(sub.b.String())
}

func (r *chatRenderer) block() {
	r.b.WriteString("\n\n")
}

func (r *chatRenderer) wrap(n *goquery.Selection, mark string) {
	text := r.inline(n)
	if text == "" {
		return
	}
	r.b.WriteString(mark + text + mark)
}

func (r *chatRenderer) node(n *goquery.Selection) {
	switch name := goquery.NodeName(n); name {
	case "#text":
		r.b.WriteString(mrkdwnEsc.Replace(spaceRun.ReplaceAllString(n.Text(), " ")))
	case "#comment", "script", "style", "head", "title":
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.block()
		if text := r.inline(n); text != "" {
			r.b.WriteString("*" + text + "*")
		}
		r.block()
	case "strong", "b":
		r.wrap(n, "*")
	case "em", "i":
		r.wrap(n, "_")
	case "s", "strike", "del":
		r.wrap(n, "~")
	case "a":
		text := r.inline(n)
		href, _ := n.Attr("href")
		href = strings.TrimSpace(href)
		switch {
		case href == "":
			r.b.WriteString(text)
		case text == "":
			r.b.WriteString("<" + href + ">")
		default:
			r.b.WriteString("<" + href + "|" + text + ">")
		}
	case "img":
		src, _ := n.Attr("src")
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			alt, _ := n.Attr("alt")
			if strings.TrimSpace(alt) == "" {
				alt = "image"
			}
			r.images = append(r.images, ChatImage{URL: src, Alt: alt})
		}
	case "br":
		r.b.WriteString("\n")
	case "hr":
		r.block()
		r.b.WriteString("──────────")
		r.block()
	case "p", "div", "section", "article", "header", "footer", "table", "tr":
		r.block()
		r.walk(n)
		r.block()
	case "ul", "ol":
		r.block()
		n.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			bullet := "• "
			if name == "ol" {
				bullet = fmt.Sprintf("%d. ", i+1)
			}
			r.b.WriteString(bullet + r.inline(li) + "\n")
		})
		r.block()
	case "li":
		r.b.WriteString("• " + r.inline(n) + "\n")
	case "blockquote":
		r.block()
		for _, line := range strings.Split(r.inline(n), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			r.b.WriteString("> " + strings.TrimSpace(line) + "\n")
		}
		r.block()
	case "code":
		if text := strings.TrimSpace(n.Text()); text != "" {
			r.b.WriteString("`" + text + "`")
		}
	case "pre":
		r.block()
		r.b.WriteString("```\n" + strings.Trim(n.Text(), "\n") + "\n```")
		r.block()
	default:
		r.walk(n)
	}
}

// chunkText splits text into pieces of at most max runes, preferring
// paragraph breaks. A hard cut never lands inside a <url|label> link.
func chunkText(text string, max int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > max {
		window := string([]rune(text)[:max])
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = len(window)
			if open := strings.LastIndex(window, "<"); open > 0 && !strings.Contains(window[open:], ">") {
				cut = open
			}
		}
		if chunk := strings.TrimSpace(text[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
