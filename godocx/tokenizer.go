package godocx

import (
	"strings"
)

const (
	openDelim  = '{'
	closeDelim = '}'
)

type tagKind int

const (
	tagValue    tagKind = iota // {name}
	tagSection                 // {#name}
	tagInverted                // {^name}
	tagClose                   // {/name}
)

// tag - тег в тексте параграфа, start/end - байтовые смещения
type tag struct {
	kind  tagKind
	name  string
	raw   string
	start int
	end   int
}

func (t tag) opens() bool {
	return t.kind == tagSection || t.kind == tagInverted
}

// parseTags находит теги в тексте параграфа
func parseTags(text string) ([]tag, []*TagError) {
	var (
		tags []tag
		errs []*TagError
	)

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case closeDelim:
			errs = append(errs, &TagError{Tag: "}", Message: "закрывающая скобка без открывающей"})
		case openDelim:
			end := strings.IndexAny(text[i+1:], "{}")
			if end == -1 || text[i+1+end] == openDelim {
				errs = append(errs, &TagError{Tag: abbreviate(text[i:]), Message: "незакрытый тег"})
				if end == -1 {
					return tags, errs
				}
				i += end
				continue
			}

			j := i + 1 + end
			t, err := newTag(text[i:j+1], i, j+1)
			if err != nil {
				errs = append(errs, err)
			} else {
				tags = append(tags, t)
			}
			i = j
		}
	}
	return tags, errs
}

func newTag(raw string, start, end int) (tag, *TagError) {
	body := strings.TrimSpace(raw[1 : len(raw)-1])
	t := tag{kind: tagValue, raw: raw, start: start, end: end}

	if body != "" {
		switch body[0] {
		case '#':
			t.kind = tagSection
		case '^':
			t.kind = tagInverted
		case '/':
			t.kind = tagClose
		}
		if t.kind != tagValue {
			body = strings.TrimSpace(body[1:])
		}
	}

	if body == "" {
		return t, &TagError{Tag: raw, Message: "пустое имя тега"}
	}
	t.name = body
	return t, nil
}

func abbreviate(s string) string {
	const max = 20
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
