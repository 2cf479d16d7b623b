package models

import "fmt"

// InvalidEnumValueError is returned when a CAP field holds a value outside
// its fixed vocabulary.
type InvalidEnumValueError struct {
	Field string
	Value string
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("invalid %s value: %q", e.Field, e.Value)
}

type Status string

const (
	StatusActual   Status = "Actual"
	StatusExercise Status = "Exercise"
	StatusSystem   Status = "System"
	StatusTest     Status = "Test"
	StatusDraft    Status = "Draft"
)

type MsgType string

const (
	MsgTypeAlert  MsgType = "Alert"
	MsgTypeUpdate MsgType = "Update"
	MsgTypeCancel MsgType = "Cancel"
	MsgTypeAck    MsgType = "Ack"
	MsgTypeError  MsgType = "Error"
)

type Scope string

const (
	ScopePublic     Scope = "Public"
	ScopeRestricted Scope = "Restricted"
	ScopePrivate    Scope = "Private"
)

type Category string

const (
	CategoryGeo       Category = "Geo"
	CategoryMet       Category = "Met"
	CategorySafety    Category = "Safety"
	CategorySecurity  Category = "Security"
	CategoryRescue    Category = "Rescue"
	CategoryFire      Category = "Fire"
	CategoryHealth    Category = "Health"
	CategoryEnv       Category = "Env"
	CategoryTransport Category = "Transport"
	CategoryInfra     Category = "Infra"
	CategoryCBRNE     Category = "CBRNE"
	CategoryOther     Category = "Other"
)

type ResponseType string

const (
	ResponseShelter  ResponseType = "Shelter"
	ResponseEvacuate ResponseType = "Evacuate"
	ResponsePrepare  ResponseType = "Prepare"
	ResponseExecute  ResponseType = "Execute"
	ResponseAvoid    ResponseType = "Avoid"
	ResponseMonitor  ResponseType = "Monitor"
	ResponseAssess   ResponseType = "Assess"
	ResponseAllClear ResponseType = "AllClear"
	ResponseNone     ResponseType = "None"
)

type Urgency string

const (
	UrgencyImmediate Urgency = "Immediate"
	UrgencyExpected  Urgency = "Expected"
	UrgencyFuture    Urgency = "Future"
	UrgencyPast      Urgency = "Past"
	UrgencyUnknown   Urgency = "Unknown"
)

type Severity string

const (
	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

type Certainty string

const (
	CertaintyObserved   Certainty = "Observed"
	CertaintyVeryLikely Certainty = "VeryLikely"
	CertaintyLikely     Certainty = "Likely"
	CertaintyPossible   Certainty = "Possible"
	CertaintyUnlikely   Certainty = "Unlikely"
	CertaintyUnknown    Certainty = "Unknown"
)

var (
	statuses = vocabulary(StatusActual, StatusExercise, StatusSystem, StatusTest, StatusDraft)
	msgTypes = vocabulary(MsgTypeAlert, MsgTypeUpdate, MsgTypeCancel, MsgTypeAck, MsgTypeError)
	scopes   = vocabulary(ScopePublic, ScopeRestricted, ScopePrivate)

	categories = vocabulary(
		CategoryGeo, CategoryMet, CategorySafety, CategorySecurity,
		CategoryRescue, CategoryFire, CategoryHealth, CategoryEnv,
		CategoryTransport, CategoryInfra, CategoryCBRNE, CategoryOther,
	)
	responseTypes = vocabulary(
		ResponseShelter, ResponseEvacuate, ResponsePrepare, ResponseExecute,
		ResponseAvoid, ResponseMonitor, ResponseAssess, ResponseAllClear, ResponseNone,
	)

	urgencies  = vocabulary(UrgencyImmediate, UrgencyExpected, UrgencyFuture, UrgencyPast, UrgencyUnknown)
	severities = vocabulary(SeverityExtreme, SeveritySevere, SeverityModerate, SeverityMinor, SeverityUnknown)

	certainties = withAlias(
		vocabulary(CertaintyObserved, CertaintyVeryLikely, CertaintyLikely,
			CertaintyPossible, CertaintyUnlikely, CertaintyUnknown),
		// CAP 1.0 spelling, still present in older archives
		"Very Likely", CertaintyVeryLikely,
	)
)

func vocabulary[T ~string](values ...T) map[string]T {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[string(v)] = v
	}
	return m
}

func withAlias[T ~string](m map[string]T, alias string, v T) map[string]T {
	m[alias] = v
	return m
}

func lookup[T ~string](vocab map[string]T, field, value string) (T, error) {
	v, ok := vocab[value]
	if !ok {
		return "", &InvalidEnumValueError{Field: field, Value: value}
	}
	return v, nil
}

func ParseStatus(s string) (Status, error)   { return lookup(statuses, "status", s) }
func ParseMsgType(s string) (MsgType, error) { return lookup(msgTypes, "msgType", s) }
func ParseScope(s string) (Scope, error)     { return lookup(scopes, "scope", s) }

func ParseCategory(s string) (Category, error) { return lookup(categories, "category", s) }

func ParseResponseType(s string) (ResponseType, error) {
	return lookup(responseTypes, "responseType", s)
}

func ParseUrgency(s string) (Urgency, error)     { return lookup(urgencies, "urgency", s) }
func ParseSeverity(s string) (Severity, error)   { return lookup(severities, "severity", s) }
func ParseCertainty(s string) (Certainty, error) { return lookup(certainties, "certainty", s) }
