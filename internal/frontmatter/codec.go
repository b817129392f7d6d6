// Package frontmatter reads and writes the restricted YAML block at the top of
// Markdown documents. Only flat scalars and string arrays are supported;
// everything after the closing delimiter is treated as opaque body text.
package frontmatter

import (
	"regexp"
	"strconv"
	"strings"
)

const delimiter = "---"

var (
	numberRe  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	specialRe = regexp.MustCompile("[\\s:{}\\[\\]|>*&!%#`@,]")
	literalRe = regexp.MustCompile(`^(true|false|null|\d+(\.\d+)?)$`)
)

// Span locates the block content inside a document: doc[Start:End] is the
// text between the opening delimiter line and the closing one, including the
// newline that terminates the last content line.
type Span struct {
	Start int
	End   int
}

// Split finds the leading block. The document must begin with a "---" line
// and the block ends at the nearest following line that is exactly "---".
func Split(doc string) (Span, bool) {
	if !strings.HasPrefix(doc, delimiter+"\n") {
		return Span{}, false
	}
	start := len(delimiter) + 1
	for pos := start; pos <= len(doc); {
		nl := strings.IndexByte(doc[pos:], '\n')
		line := doc[pos:]
		if nl >= 0 {
			line = doc[pos : pos+nl]
		}
		if line == delimiter {
			return Span{Start: start, End: pos}, true
		}
		if nl < 0 {
			break
		}
		pos += nl + 1
	}
	return Span{}, false
}

// Parse returns the leading block of doc, or false when doc has none.
func Parse(doc string) (*Block, bool) {
	span, ok := Split(doc)
	if !ok {
		return nil, false
	}
	return parseContent(doc[span.Start:span.End]), true
}

func parseContent(content string) *Block {
	b := NewBlock()

	var (
		arrayKey string
		items    []string
		inArray  bool
	)
	flush := func() {
		if inArray {
			b.Set(arrayKey, StringArray(items...))
			inArray = false
			items = nil
		}
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line == "-" || strings.HasPrefix(line, "- ") {
			if inArray {
				items = append(items, strings.TrimSpace(line[1:]))
			}
			continue
		}
		flush()

		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if value == "" {
			arrayKey, items, inArray = key, []string{}, true
			continue
		}
		b.Set(key, parseScalar(value))
	}
	flush()

	return b
}

func parseScalar(v string) Value {
	switch v {
	case "null":
		return Null()
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "[]":
		return StringArray()
	}
	// Zero-padded values such as "007" stay strings.
	if numberRe.MatchString(v) && !strings.HasPrefix(v, "0") {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return Number(n)
		}
	}
	return String(unquote(v))
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	first, last := v[0], v[len(v)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}

// Serialize renders b as frontmatter lines without delimiters or a trailing
// newline.
func Serialize(b *Block) string {
	if b == nil {
		return ""
	}
	lines := make([]string, 0, b.Len())
	b.Each(func(key string, v Value) bool {
		switch v.Kind() {
		case KindStringArray:
			if len(v.items) == 0 {
				lines = append(lines, key+": []")
				break
			}
			lines = append(lines, key+":")
			for _, it := range v.items {
				lines = append(lines, "  - "+singleLine(it))
			}
		default:
			lines = append(lines, key+": "+v.String())
		}
		return true
	})
	return strings.Join(lines, "\n")
}

// singleLine folds line breaks and the whitespace around them into one
// space. A value must stay on its key's line.
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

func quoteIfNeeded(s string) string {
	s = singleLine(s)
	if needsQuoting(s) {
		return `"` + s + `"`
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	switch s[0] {
	case '-', '"', '\'':
		return true
	}
	return specialRe.MatchString(s) || literalRe.MatchString(s)
}

// ReplaceBlock swaps the content of doc's leading block for text, leaving
// both delimiter lines and the body untouched. Without a leading block a new
// one is prepended and the whole of doc becomes the body.
func ReplaceBlock(doc, text string) string {
	span, ok := Split(doc)
	if !ok {
		if text == "" {
			return delimiter + "\n" + delimiter + "\n" + doc
		}
		return delimiter + "\n" + text + "\n" + delimiter + "\n" + doc
	}
	if text == "" {
		return doc[:span.Start] + doc[span.End:]
	}
	return doc[:span.Start] + text + "\n" + doc[span.End:]
}

// Rewrite serializes b into doc's leading block.
func Rewrite(doc string, b *Block) string {
	return ReplaceBlock(doc, Serialize(b))
}

// Body returns everything after the closing delimiter line, or all of doc
// when there is no leading block.
func Body(doc string) string {
	span, ok := Split(doc)
	if !ok {
		return doc
	}
	rest := doc[span.End+len(delimiter):]
	return strings.TrimPrefix(rest, "\n")
}
