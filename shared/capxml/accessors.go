// Package capxml reads fields out of CAP 1.x documents. Paths are XPath
// expressions using the "cap" prefix, which is bound to whatever CAP namespace
// the document's root element declares.
package capxml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

const (
	Namespace = "urn:oasis:names:tc:emergency:cap:1.2"
	Prefix    = "cap"

	namespaceFamily = "urn:oasis:names:tc:emergency:cap:"
)

type Node = xmlquery.Node

// Document is a parsed CAP alert. Accessor methods resolve paths relative to
// the element they are given.
type Document struct {
	Root      *Node
	Namespace string
}

// compiled expressions keyed by namespace and path
var exprCache sync.Map

type exprKey struct{ ns, path string }

// Parse reads one CAP document. The root element must be an alert in a CAP
// namespace, or in no namespace at all.
func Parse(raw string) (*Document, error) {
	top, err := xmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, &SyntaxError{Err: err}
	}

	var root *Node
	for n := top.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			root = n
			break
		}
	}
	if root == nil {
		return nil, &SyntaxError{Err: fmt.Errorf("no root element")}
	}
	if root.Data != "alert" {
		return nil, &MissingFieldError{Path: Prefix + ":alert"}
	}
	if root.NamespaceURI != "" && !strings.HasPrefix(root.NamespaceURI, namespaceFamily) {
		return nil, &SyntaxError{Err: fmt.Errorf("unexpected root namespace %q", root.NamespaceURI)}
	}

	return &Document{Root: root, Namespace: root.NamespaceURI}, nil
}

func (d *Document) expr(path string) *xpath.Expr {
	key := exprKey{d.Namespace, path}
	if e, ok := exprCache.Load(key); ok {
		return e.(*xpath.Expr)
	}
	e, err := xpath.CompileWithNS(path, map[string]string{Prefix: d.Namespace})
	if err != nil {
		// paths are compile-time constants in this module
		panic(fmt.Sprintf("capxml: bad path %q: %s", path, err))
	}
	exprCache.Store(key, e)
	return e
}

// All returns every element matching path under elem, in document order.
func (d *Document) All(elem *Node, path string) []*Node {
	return xmlquery.QuerySelectorAll(elem, d.expr(path))
}

// OptionalText returns the trimmed text of the first match, or nil when there
// is no match or the text is empty.
func (d *Document) OptionalText(elem *Node, path string) *string {
	n := xmlquery.QuerySelector(elem, d.expr(path))
	if n == nil {
		return nil
	}
	text := strings.TrimSpace(n.InnerText())
	if text == "" {
		return nil
	}
	return &text
}

func (d *Document) RequiredText(elem *Node, path string) (string, error) {
	text := d.OptionalText(elem, path)
	if text == nil {
		return "", &MissingFieldError{Path: path}
	}
	return *text, nil
}

// AllText returns the trimmed text of every match, skipping empty ones.
func (d *Document) AllText(elem *Node, path string) []string {
	var out []string
	for _, n := range d.All(elem, path) {
		if text := strings.TrimSpace(n.InnerText()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// OptionalInt parses the first match as an integer. Decimal text is truncated
// toward zero, so "1500.0" reads as 1500.
func (d *Document) OptionalInt(elem *Node, path string) (*int, error) {
	text := d.OptionalText(elem, path)
	if text == nil {
		return nil, nil
	}
	if v, err := strconv.Atoi(*text); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(*text, 64)
	if err != nil || math.IsNaN(f) || f > maxInt || f < minInt {
		return nil, &MalformedNumberError{Path: path, Text: *text}
	}
	v := int(f)
	return &v, nil
}

const (
	maxInt = float64(1<<53 - 1)
	minInt = -maxInt
)

// OptionalDate parses the first match as an ISO-8601 timestamp. Text that
// does not parse is treated as absent.
func (d *Document) OptionalDate(elem *Node, path string) *time.Time {
	text := d.OptionalText(elem, path)
	if text == nil {
		return nil
	}
	t, ok := ParseTime(*text)
	if !ok {
		return nil
	}
	return &t
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts the ISO-8601 shapes seen in CAP archives. Timestamps
// without an offset are read as UTC.
func ParseTime(text string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
