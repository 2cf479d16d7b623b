// Package normalizer turns one raw CAP document into a models.Alert graph.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/helloharbor/harbor-workers/cap-alerts/shared/capxml"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/geometries"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/models"
	log "github.com/sirupsen/logrus"
)

const defaultLanguage = "en-US"

// Error carries the alert identifier, when it could be read, alongside the
// reason the document was rejected.
type Error struct {
	Identifier string
	Err        error
}

func (e *Error) Error() string {
	if e.Identifier == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("alert %s: %s", e.Identifier, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Normalizer struct {
	log log.FieldLogger
}

func New(logger log.FieldLogger) *Normalizer {
	return &Normalizer{log: logger}
}

// Normalize parses raw and builds the full alert graph. It returns either a
// complete graph or an error, never both.
func (n *Normalizer) Normalize(raw string) (*models.Alert, error) {
	doc, err := capxml.Parse(raw)
	if err != nil {
		return nil, &Error{Err: err}
	}

	p := &parser{doc: doc, log: n.log}
	if id := doc.OptionalText(doc.Root, "cap:identifier"); id != nil {
		p.identifier = *id
		p.log = n.log.WithField("identifier", *id)
	}

	alert, err := p.alert(doc.Root)
	if err != nil {
		return nil, &Error{Identifier: p.identifier, Err: err}
	}
	return alert, nil
}

// parser holds the state for a single document.
type parser struct {
	doc        *capxml.Document
	log        log.FieldLogger
	identifier string
}

func (p *parser) alert(elem *capxml.Node) (*models.Alert, error) {
	d := p.doc
	a := &models.Alert{
		Source:      d.OptionalText(elem, "cap:source"),
		Restriction: d.OptionalText(elem, "cap:restriction"),
		Note:        d.OptionalText(elem, "cap:note"),
		Codes:       d.AllText(elem, "cap:code"),
	}

	var err error
	if a.Identifier, err = d.RequiredText(elem, "cap:identifier"); err != nil {
		return nil, err
	}
	if a.Sender, err = d.RequiredText(elem, "cap:sender"); err != nil {
		return nil, err
	}

	a.Sent = p.date(elem, "cap:sent")
	if a.Sent == nil {
		p.log.Warn("alert has no usable sent timestamp")
	}

	if a.Status, err = enum(d, elem, "cap:status", models.ParseStatus); err != nil {
		return nil, err
	}
	if a.MsgType, err = enum(d, elem, "cap:msgType", models.ParseMsgType); err != nil {
		return nil, err
	}
	if a.Scope, err = enum(d, elem, "cap:scope", models.ParseScope); err != nil {
		return nil, err
	}

	if a.Addresses, err = p.quoted(elem, "cap:addresses"); err != nil {
		return nil, err
	}
	if a.Incidents, err = p.quoted(elem, "cap:incidents"); err != nil {
		return nil, err
	}
	refs, err := p.quoted(elem, "cap:references")
	if err != nil {
		return nil, err
	}
	for _, tok := range refs {
		a.References = append(a.References, p.reference(tok))
	}

	for i, infoElem := range d.All(elem, "cap:info") {
		info, err := p.info(infoElem)
		if err != nil {
			return nil, fmt.Errorf("info[%d]: %w", i, err)
		}
		a.Info = append(a.Info, info)
	}

	return a, nil
}

// reference reads "sender,identifier,sent". Anything else is kept whole as
// the identifier.
func (p *parser) reference(tok string) models.Reference {
	parts := strings.Split(tok, ",")
	if len(parts) == 3 {
		if sent, ok := capxml.ParseTime(parts[2]); ok {
			sender := parts[0]
			return models.Reference{Sender: &sender, Identifier: parts[1], Sent: &sent}
		}
	}
	p.log.WithField("reference", tok).Warn("reference is not sender,identifier,sent; keeping it as a bare identifier")
	return models.Reference{Identifier: tok}
}

func (p *parser) info(elem *capxml.Node) (models.AlertInfo, error) {
	d := p.doc
	info := models.AlertInfo{
		Language:    defaultLanguage,
		Audience:    d.OptionalText(elem, "cap:audience"),
		Effective:   p.date(elem, "cap:effective"),
		Onset:       p.date(elem, "cap:onset"),
		Expires:     p.date(elem, "cap:expires"),
		SenderName:  d.OptionalText(elem, "cap:senderName"),
		Headline:    d.OptionalText(elem, "cap:headline"),
		Description: d.OptionalText(elem, "cap:description"),
		Instruction: d.OptionalText(elem, "cap:instruction"),
		Web:         d.OptionalText(elem, "cap:web"),
		Contact:     d.OptionalText(elem, "cap:contact"),
	}
	if lang := d.OptionalText(elem, "cap:language"); lang != nil {
		info.Language = *lang
	}

	var err error
	if info.Event, err = d.RequiredText(elem, "cap:event"); err != nil {
		return info, err
	}
	if info.Urgency, err = enum(d, elem, "cap:urgency", models.ParseUrgency); err != nil {
		return info, err
	}
	if info.Severity, err = enum(d, elem, "cap:severity", models.ParseSeverity); err != nil {
		return info, err
	}
	if info.Certainty, err = enum(d, elem, "cap:certainty", models.ParseCertainty); err != nil {
		return info, err
	}

	for _, text := range d.AllText(elem, "cap:category") {
		c, err := models.ParseCategory(text)
		if err != nil {
			return info, err
		}
		info.Categories = append(info.Categories, c)
	}
	for _, text := range d.AllText(elem, "cap:responseType") {
		r, err := models.ParseResponseType(text)
		if err != nil {
			return info, err
		}
		info.ResponseTypes = append(info.ResponseTypes, r)
	}

	if info.EventCodes, err = p.valuePairs(elem, "cap:eventCode"); err != nil {
		return info, err
	}
	if info.Parameters, err = p.valuePairs(elem, "cap:parameter"); err != nil {
		return info, err
	}

	for _, resElem := range d.All(elem, "cap:resource") {
		res, err := p.resource(resElem)
		if err != nil {
			return info, err
		}
		info.Resources = append(info.Resources, res)
	}

	for i, areaElem := range d.All(elem, "cap:area") {
		area, err := p.area(areaElem)
		if err != nil {
			return info, fmt.Errorf("area[%d]: %w", i, err)
		}
		info.Areas = append(info.Areas, area)
	}

	return info, nil
}

func (p *parser) resource(elem *capxml.Node) (models.Resource, error) {
	d := p.doc
	res := models.Resource{
		URI:      d.OptionalText(elem, "cap:uri"),
		DerefURI: d.OptionalText(elem, "cap:derefUri"),
		Digest:   d.OptionalText(elem, "cap:digest"),
	}

	var err error
	if res.Description, err = d.RequiredText(elem, "cap:resourceDesc"); err != nil {
		return res, err
	}
	if res.MimeType, err = d.RequiredText(elem, "cap:mimeType"); err != nil {
		return res, err
	}
	if res.Size, err = d.OptionalInt(elem, "cap:size"); err != nil {
		return res, err
	}
	return res, nil
}

func (p *parser) area(elem *capxml.Node) (models.Area, error) {
	d := p.doc
	var area models.Area

	var err error
	if area.Description, err = d.RequiredText(elem, "cap:areaDesc"); err != nil {
		return area, err
	}
	if area.Altitude, err = d.OptionalInt(elem, "cap:altitude"); err != nil {
		return area, err
	}
	if area.Ceiling, err = d.OptionalInt(elem, "cap:ceiling"); err != nil {
		return area, err
	}

	// polygons are listed before circles regardless of document order
	for _, text := range d.AllText(elem, "cap:polygon") {
		shape, err := geometries.ParsePolygon(text)
		if err != nil {
			return area, err
		}
		if err := p.addShape(&area, shape); err != nil {
			return area, err
		}
	}
	for _, text := range d.AllText(elem, "cap:circle") {
		shape, err := geometries.ParseCircle(text)
		if err != nil {
			return area, err
		}
		if err := p.addShape(&area, shape); err != nil {
			return area, err
		}
	}

	if area.GeoCodes, err = p.valuePairs(elem, "cap:geocode"); err != nil {
		return area, err
	}
	return area, nil
}

func (p *parser) addShape(area *models.Area, shape geometries.Shape) error {
	poly, err := geometries.Build(shape)
	if errors.Is(err, geometries.ErrEmptyShape) {
		p.log.WithFields(log.Fields{
			"areaDesc": area.Description,
			"kind":     shape.Kind(),
		}).Warn("skipping shape with no area")
		return nil
	}
	if err != nil {
		return err
	}
	area.Polygons = append(area.Polygons, poly)
	return nil
}

// valuePairs reads eventCode, parameter and geocode blocks. The value may be
// empty; the name may not.
func (p *parser) valuePairs(elem *capxml.Node, path string) ([]models.ValuePair, error) {
	var out []models.ValuePair
	for _, pairElem := range p.doc.All(elem, path) {
		name, err := p.doc.RequiredText(pairElem, "cap:valueName")
		if err != nil {
			return nil, &capxml.MissingFieldError{Path: path + "/cap:valueName"}
		}
		pair := models.ValuePair{ValueName: name}
		if v := p.doc.OptionalText(pairElem, "cap:value"); v != nil {
			pair.Value = *v
		}
		out = append(out, pair)
	}
	return out, nil
}

func (p *parser) quoted(elem *capxml.Node, path string) ([]string, error) {
	text := p.doc.OptionalText(elem, path)
	if text == nil {
		return nil, nil
	}
	return capxml.QuotedTokens(*text)
}

// date wraps OptionalDate so that text which is present but unparsable is
// logged instead of silently dropped.
func (p *parser) date(elem *capxml.Node, path string) *time.Time {
	t := p.doc.OptionalDate(elem, path)
	if t == nil {
		if text := p.doc.OptionalText(elem, path); text != nil {
			p.log.WithFields(log.Fields{"field": path, "text": *text}).Warn("unparsable timestamp treated as absent")
		}
	}
	return t
}

func enum[T ~string](d *capxml.Document, elem *capxml.Node, path string, parse func(string) (T, error)) (T, error) {
	text, err := d.RequiredText(elem, path)
	if err != nil {
		var zero T
		return zero, err
	}
	return parse(text)
}
