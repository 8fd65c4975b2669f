package godocx

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Options - настройки подстановки
type Options struct {
	// ParagraphLoop удаляет параграфы, в которых стоит только тег раздела,
	// и повторяет параграфы между ними
	ParagraphLoop bool
	// LineBreaks превращает переносы строк в значениях в w:br
	LineBreaks bool
}

type renderer struct {
	part string
	opts Options
	done map[*etree.Element]bool
}

func newRenderer(part string, opts Options) *renderer {
	return &renderer{part: part, opts: opts, done: make(map[*etree.Element]bool)}
}

// validate проверяет синтаксис тегов и парность разделов во всей части
func validate(part string, root *etree.Element) []error {
	var (
		errs  []error
		stack []tag
	)

	for _, p := range paragraphs(root) {
		tags, terrs := parseTags(paragraphText(p))
		for _, e := range terrs {
			e.Part = part
			errs = append(errs, e)
		}

		for _, t := range tags {
			switch {
			case t.opens():
				stack = append(stack, t)
			case t.kind == tagClose:
				if len(stack) == 0 {
					errs = append(errs, &TagError{Part: part, Tag: t.raw, Message: "закрывающий тег без открывающего"})
					continue
				}
				top := stack[len(stack)-1]
				if top.name != t.name {
					errs = append(errs, &TagError{Part: part, Tag: t.raw, Message: fmt.Sprintf("ожидался {/%s}", top.name)})
					continue
				}
				stack = stack[:len(stack)-1]
			}
		}
	}

	for _, t := range stack {
		errs = append(errs, &TagError{Part: part, Tag: t.raw, Message: "незакрытый раздел"})
	}
	return errs
}

// located - тег вместе с параграфом, в котором он найден
type located struct {
	p *etree.Element
	t tag
}

// renderContainer сначала разворачивает разделы, охватывающие несколько
// параграфов, затем подставляет значения в оставшиеся параграфы
func (r *renderer) renderContainer(root *etree.Element, sc scope) error {
	for {
		open, close, ok := r.spanningSection(root)
		if !ok {
			break
		}
		if err := r.expand(open, close, sc); err != nil {
			return err
		}
	}

	for _, p := range r.pending(root) {
		if err := r.renderParagraph(p, sc); err != nil {
			return err
		}
		r.done[p] = true
	}
	return nil
}

func (r *renderer) pending(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, p := range paragraphs(root) {
		if !r.done[p] {
			out = append(out, p)
		}
	}
	return out
}

// spanningSection находит первый внешний раздел, открытый и закрытый в разных параграфах
func (r *renderer) spanningSection(root *etree.Element) (open, close located, ok bool) {
	var stack []located

	for _, p := range r.pending(root) {
		tags, _ := parseTags(paragraphText(p))
		for _, t := range tags {
			switch {
			case t.opens():
				stack = append(stack, located{p: p, t: t})
			case t.kind == tagClose:
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if len(stack) == 0 && top.p != p {
					return top, located{p: p, t: t}, true
				}
			}
		}
	}
	return located{}, located{}, false
}

// expand повторяет дочерние элементы общего предка между тегами раздела
// для каждого элемента данных
func (r *renderer) expand(open, close located, sc scope) error {
	lca, a, b := commonAncestor(open.p, close.p)
	if lca == nil || a == nil || b == nil {
		return &TagError{Part: r.part, Tag: open.t.raw, Message: "раздел пересекает вложенные параграфы"}
	}
	// раздел между ячейками одной строки повторяет строку целиком
	if lca.FullTag() == "w:tr" {
		a, b, lca = lca, lca, lca.Parent()
	}

	var rangeElems []*etree.Element
	for _, tok := range lca.Child[a.Index() : b.Index()+1] {
		if e, ok := tok.(*etree.Element); ok {
			rangeElems = append(rangeElems, e)
		}
	}

	paras := paragraphs(rangeElems...)
	openIdx, closeIdx := indexOf(paras, open.p), indexOf(paras, close.p)
	dropOpen := r.opts.ParagraphLoop && a == open.p && alone(open.p, open.t)
	dropClose := r.opts.ParagraphLoop && b == close.p && alone(close.p, close.t)

	items, err := r.iterations(open.t, sc)
	if err != nil {
		return err
	}

	var results []*etree.Element
	for _, item := range items {
		copies := make([]*etree.Element, len(rangeElems))
		for i, e := range rangeElems {
			copies[i] = e.Copy()
		}

		cparas := paragraphs(copies...)
		replaceRange(cparas[closeIdx], close.t.start, close.t.end, "", false)
		replaceRange(cparas[openIdx], open.t.start, open.t.end, "", false)

		if dropClose {
			copies = copies[:len(copies)-1]
		}
		if dropOpen {
			copies = copies[1:]
		}

		wrapper := etree.NewElement("w:body")
		for _, c := range copies {
			wrapper.AddChild(c)
		}
		if err := r.renderContainer(wrapper, item); err != nil {
			return err
		}
		for _, c := range wrapper.ChildElements() {
			wrapper.RemoveChild(c)
			results = append(results, c)
		}
	}

	pos := a.Index()
	for _, e := range rangeElems {
		lca.RemoveChild(e)
	}
	for i, e := range results {
		lca.InsertChildAt(pos+i, e)
	}
	return nil
}

// iterations возвращает контексты для каждого повторения раздела
func (r *renderer) iterations(t tag, sc scope) ([]scope, error) {
	v, ok := sc.lookup(t.name)
	if !ok {
		return nil, &MissingValueError{Name: t.name}
	}

	items := sectionItems(v)
	if t.kind == tagInverted {
		if len(items) == 0 {
			return []scope{sc}, nil
		}
		return nil, nil
	}

	out := make([]scope, len(items))
	for i, item := range items {
		out[i] = sc.push(item)
	}
	return out, nil
}

// renderParagraph подставляет значения и внутренние разделы параграфа
func (r *renderer) renderParagraph(p *etree.Element, sc scope) error {
	text := paragraphText(p)
	tags, _ := parseTags(text)
	if len(tags) == 0 {
		return nil
	}

	type replacement struct {
		start, end int
		value      string
	}
	var repls []replacement

	for i := 0; i < len(tags); i++ {
		t := tags[i]
		switch {
		case t.kind == tagValue:
			v, err := r.value(t.name, sc)
			if err != nil {
				return err
			}
			repls = append(repls, replacement{start: t.start, end: t.end, value: v})
		case t.opens():
			j := matchClose(tags, i)
			if j == -1 {
				return &TagError{Part: r.part, Tag: t.raw, Message: "незакрытый раздел"}
			}
			v, err := r.renderSection(text, tags, i, j, sc)
			if err != nil {
				return err
			}
			repls = append(repls, replacement{start: t.start, end: tags[j].end, value: v})
			i = j
		}
	}

	for k := len(repls) - 1; k >= 0; k-- {
		replaceRange(p, repls[k].start, repls[k].end, repls[k].value, r.opts.LineBreaks)
	}
	return nil
}

// renderSection раскрывает раздел tags[i]..tags[j] внутри одного параграфа как текст
func (r *renderer) renderSection(text string, tags []tag, i, j int, sc scope) (string, error) {
	items, err := r.iterations(tags[i], sc)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, item := range items {
		s, err := r.renderText(text, tags[i].end, tags[j].start, tags[i+1:j], item)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// renderText подставляет теги в фрагмент text[from:to]
func (r *renderer) renderText(text string, from, to int, tags []tag, sc scope) (string, error) {
	var sb strings.Builder
	pos := from

	for i := 0; i < len(tags); i++ {
		t := tags[i]
		sb.WriteString(text[pos:t.start])

		switch {
		case t.kind == tagValue:
			v, err := r.value(t.name, sc)
			if err != nil {
				return "", err
			}
			sb.WriteString(v)
			pos = t.end
		case t.opens():
			j := matchClose(tags, i)
			if j == -1 {
				return "", &TagError{Part: r.part, Tag: t.raw, Message: "незакрытый раздел"}
			}
			v, err := r.renderSection(text, tags, i, j, sc)
			if err != nil {
				return "", err
			}
			sb.WriteString(v)
			pos = tags[j].end
			i = j
		default:
			pos = t.end
		}
	}

	sb.WriteString(text[pos:to])
	return sb.String(), nil
}

func (r *renderer) value(name string, sc scope) (string, error) {
	v, ok := sc.lookup(name)
	if !ok {
		return "", &MissingValueError{Name: name}
	}
	return formatValue(name, v)
}

// matchClose возвращает индекс закрывающего тега для tags[i] или -1
func matchClose(tags []tag, i int) int {
	depth := 0
	for j := i + 1; j < len(tags); j++ {
		switch {
		case tags[j].opens():
			depth++
		case tags[j].kind == tagClose:
			if depth == 0 {
				if tags[j].name == tags[i].name {
					return j
				}
				return -1
			}
			depth--
		}
	}
	return -1
}

// alone проверяет, что кроме тега в параграфе только пробелы
func alone(p *etree.Element, t tag) bool {
	text := paragraphText(p)
	return strings.TrimSpace(text[:t.start]+text[t.end:]) == ""
}

func indexOf(elems []*etree.Element, e *etree.Element) int {
	for i, x := range elems {
		if x == e {
			return i
		}
	}
	return -1
}
