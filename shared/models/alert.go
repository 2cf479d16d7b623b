package models

import (
	"time"

	"github.com/paulmach/orb"
)

// Alert is the root of the entity graph built from one CAP document. Nothing
// in the graph is persisted yet; ids are assigned by the store on insert.
type Alert struct {
	Identifier  string
	Sender      string
	Sent        *time.Time
	Status      Status
	MsgType     MsgType
	Source      *string
	Scope       Scope
	Restriction *string
	Note        *string

	Addresses  []string
	Codes      []string
	References []Reference
	Incidents  []string
	Info       []AlertInfo
}

// Reference points at an earlier alert. Sender and Sent are nil when the
// source token was not a well formed sender,identifier,sent triple.
type Reference struct {
	Sender     *string
	Identifier string
	Sent       *time.Time
}

type AlertInfo struct {
	Language    string
	Event       string
	Urgency     Urgency
	Severity    Severity
	Certainty   Certainty
	Audience    *string
	Effective   *time.Time
	Onset       *time.Time
	Expires     *time.Time
	SenderName  *string
	Headline    *string
	Description *string
	Instruction *string
	Web         *string
	Contact     *string

	Categories    []Category
	ResponseTypes []ResponseType
	EventCodes    []ValuePair
	Parameters    []ValuePair
	Resources     []Resource
	Areas         []Area
}

// ValuePair is the valueName/value shape shared by eventCode, parameter and
// geocode elements.
type ValuePair struct {
	ValueName string
	Value     string
}

type Resource struct {
	Description string
	MimeType    string
	Size        *int
	URI         *string
	DerefURI    *string
	Digest      *string
}

type Area struct {
	Description string
	Altitude    *int
	Ceiling     *int

	Polygons []AreaPolygon
	GeoCodes []ValuePair
}

type ShapeKind string

const (
	ShapeCircle  ShapeKind = "circle"
	ShapePolygon ShapeKind = "polygon"
)

// AreaPolygon is one canonical WGS84 polygon. Coordinates are (lon, lat).
type AreaPolygon struct {
	Kind    ShapeKind
	Geom    orb.Polygon
	SRID    int
	Geohash string
}
