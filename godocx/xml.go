package godocx

import (
	"strings"

	"github.com/beevik/etree"
)

const (
	tagParagraph = "w:p"
	tagText      = "w:t"
	tagBreak     = "w:br"
)

// paragraphs возвращает все параграфы в порядке документа, включая вложенные
func paragraphs(elems ...*etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if e.FullTag() == tagParagraph {
			out = append(out, e)
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	for _, e := range elems {
		walk(e)
	}
	return out
}

// span - текстовый узел w:t и его смещения в тексте параграфа
type span struct {
	node       *etree.Element
	start, end int
}

// textSpans собирает узлы w:t параграфа, не заходя во вложенные параграфы
func textSpans(p *etree.Element) []span {
	var (
		spans []span
		pos   int
	)
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			switch c.FullTag() {
			case tagText:
				n := len(c.Text())
				spans = append(spans, span{node: c, start: pos, end: pos + n})
				pos += n
			case tagParagraph:
				// текстовые поля обрабатываются как отдельные параграфы
			default:
				walk(c)
			}
		}
	}
	walk(p)
	return spans
}

func paragraphText(p *etree.Element) string {
	var sb strings.Builder
	for _, s := range textSpans(p) {
		sb.WriteString(s.node.Text())
	}
	return sb.String()
}

// replaceRange заменяет текст параграфа в диапазоне [start, end) значением.
// Значение попадает в узел, где начинается диапазон, и наследует свойства его run.
func replaceRange(p *etree.Element, start, end int, value string, lineBreaks bool) {
	var first *etree.Element

	for _, s := range textSpans(p) {
		if s.end <= start || s.start >= end {
			continue
		}

		text := s.node.Text()
		lo := max(start, s.start) - s.start
		hi := min(end, s.end) - s.start

		if first == nil {
			first = s.node
			setText(first, text[:lo]+value+text[hi:], lineBreaks)
			continue
		}
		s.node.SetText(text[:lo] + text[hi:])
	}
}

// setText записывает текст в узел w:t; переносы строк превращаются в w:br
func setText(t *etree.Element, text string, lineBreaks bool) {
	lines := []string{text}
	if lineBreaks {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		lines = strings.Split(text, "\n")
	}

	t.SetText(lines[0])
	preserveSpace(t)
	if len(lines) == 1 {
		return
	}

	parent := t.Parent()
	idx := t.Index()
	for i, line := range lines[1:] {
		br := etree.NewElement(tagBreak)
		newT := etree.NewElement(tagText)
		newT.SetText(line)
		preserveSpace(newT)

		parent.InsertChildAt(idx+1+2*i, br)
		parent.InsertChildAt(idx+2+2*i, newT)
	}
}

func preserveSpace(t *etree.Element) {
	if t.SelectAttrValue("xml:space", "") != "preserve" {
		t.CreateAttr("xml:space", "preserve")
	}
}

// commonAncestor находит ближайшего общего предка двух элементов и его
// дочерние элементы, содержащие каждый из них
func commonAncestor(x, y *etree.Element) (lca, a, b *etree.Element) {
	chain := make(map[*etree.Element]*etree.Element)
	for child, e := (*etree.Element)(nil), x; e != nil; child, e = e, e.Parent() {
		chain[e] = child
	}

	for child, e := (*etree.Element)(nil), y; e != nil; child, e = e, e.Parent() {
		if ax, ok := chain[e]; ok {
			return e, ax, child
		}
	}
	return nil, nil, nil
}
