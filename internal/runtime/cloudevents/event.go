// Package cloudevents builds CloudEvents v1.0 envelopes around shipped
// events. See https://github.com/cloudevents/spec/blob/v1.0/spec.md.
package cloudevents

import (
	"errors"
	"maps"
	"time"

	"github.com/drblury/shipflow/internal/runtime/ids"
	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// Event is a CloudEvents v1.0 envelope. Extensions are flattened into the
// top level when encoded.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	DataContentType *string
	Subject         *string
	Data            any
	Extensions      map[string]any
}

// New creates an envelope with a ULID id.
func New(eventType, source string, data any) Event {
	return Event{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          ids.CreateULID(),
		Data:        data,
		Extensions:  make(map[string]any),
	}
}

// WithTime sets the occurrence time and returns the event.
func (e Event) WithTime(t time.Time) Event {
	e.Time = t
	return e
}

// WithSubject sets the subject field and returns the event.
func (e Event) WithSubject(subject string) Event {
	e.Subject = &subject
	return e
}

// WithDataContentType sets the data content type and returns the event.
func (e Event) WithDataContentType(contentType string) Event {
	e.DataContentType = &contentType
	return e
}

// WithExtension sets an extension attribute and returns the event.
func (e Event) WithExtension(key string, value any) Event {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	} else {
		e.Extensions = maps.Clone(e.Extensions)
	}
	e.Extensions[key] = value
	return e
}

// GetExtension returns nil when the extension is not set.
func (e Event) GetExtension(key string) any {
	return e.Extensions[key]
}

// Validate checks that the event has all required attributes.
func (e Event) Validate() error {
	var errs []error
	if e.SpecVersion != SpecVersion {
		errs = append(errs, errors.New("specversion must be "+SpecVersion))
	}
	if e.Type == "" {
		errs = append(errs, errors.New("type is required"))
	}
	if e.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	for k := range e.Extensions {
		if !validExtensionName(k) {
			errs = append(errs, errors.New("extension name "+k+" must be lowercase alphanumeric"))
		}
	}
	return errors.Join(errs...)
}

// ToMap renders the structured JSON form with extensions at the top level.
func (e Event) ToMap() map[string]any {
	m := make(map[string]any, 6+len(e.Extensions))
	maps.Copy(m, e.Extensions)
	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = FormatTime(e.Time)
	}
	if e.DataContentType != nil {
		m["datacontenttype"] = *e.DataContentType
	}
	if e.Subject != nil {
		m["subject"] = *e.Subject
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	return m
}

func (e Event) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(e.ToMap())
}

func validExtensionName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
