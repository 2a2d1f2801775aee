package extract

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// element is a minimal in-memory XML element. Names are local names; namespace
// prefixes are dropped so lookups work on prefixed and plain documents alike.
type element struct {
	name     string
	attrs    map[string]string
	text     strings.Builder // character data before the first child
	children []*element
}

// Text returns the element's leading character data.
func (e *element) Text() string { return e.text.String() }

// Attr returns the attribute value for name.
func (e *element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *element) is(name, attr, value string) bool {
	if e.name != name {
		return false
	}
	v, ok := e.attrs[attr]
	return ok && v == value
}

// firstChild returns the first direct child matching match.
func (e *element) firstChild(match func(*element) bool) *element {
	for _, c := range e.children {
		if match(c) {
			return c
		}
	}
	return nil
}

// firstDescendant returns the first descendant in document order, excluding e.
func (e *element) firstDescendant(match func(*element) bool) *element {
	for _, c := range e.children {
		if match(c) {
			return c
		}
		if d := c.firstDescendant(match); d != nil {
			return d
		}
	}
	return nil
}

// descendants returns every descendant matching match in document order,
// excluding e.
func (e *element) descendants(match func(*element) bool) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for _, c := range n.children {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

func named(name string) func(*element) bool {
	return func(e *element) bool { return e.name == name }
}

func namedWith(name, attr, value string) func(*element) bool {
	return func(e *element) bool { return e.is(name, attr, value) }
}

var (
	errNoRoot      = errors.New("document has no root element")
	errJunkOutside = errors.New("character data outside the root element")
)

// UTF-8, UTF-16LE and UTF-16BE
var byteOrderMarks = [][]byte{{0xef, 0xbb, 0xbf}, {0xff, 0xfe}, {0xfe, 0xff}}

// parseDocument reads a whole XML document and returns its root element.
// Documents starting with a byte order mark are transcoded to UTF-8 from the
// mark, and their declared encoding is ignored. Other declared non-UTF-8
// encodings are decoded through x/net's charset table.
func parseDocument(r io.Reader) (*element, error) {
	src, transcoded := decodeBOM(r)
	dec := xml.NewDecoder(src)
	dec.CharsetReader = charset.NewReaderLabel
	if transcoded {
		dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	}

	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("unexpected second root element <%s>", t.Name.Local)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, errJunkOutside
				}
				continue
			}
			if top := stack[len(stack)-1]; len(top.children) == 0 {
				top.text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, errNoRoot
	}
	return root, nil
}

// decodeBOM wraps r in a UTF-8 transcoder when it starts with a UTF-8 or
// UTF-16 byte order mark.
func decodeBOM(r io.Reader) (io.Reader, bool) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(3)
	for _, bom := range byteOrderMarks {
		if bytes.HasPrefix(head, bom) {
			return transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder())), true
		}
	}
	return br, false
}
