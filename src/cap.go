package mowas

// Common Alerting Protocol v1.2 data model.
//
// Specifications:
//  - CAP: https://docs.oasis-open.org/emergency/cap/v1.2/CAP-v1.2-os.html
//
// The same structures serve three encodings: the BBK JSON feed, the DARC
// CAP XML files, and the alert cache on disk. CAP allows `info`,
// `info.resource` and `info.area` to appear either as a single element or
// as a list; the slice fields below absorb both shapes on ingress.

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"time"
)

// CAPTime is a CAP timestamp. CAP mandates ISO-8601 with a timezone
// offset, which matches RFC 3339 for every feed we consume.
type CAPTime struct {
	time.Time
}

func ParseCAPTime(s string) (CAPTime, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return CAPTime{}, err
	}
	return CAPTime{t}, nil
}

func (t CAPTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

func (t *CAPTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCAPTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *CAPTime) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	parsed, err := ParseCAPTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CAPAlert is the root element of a CAP message.
type CAPAlert struct {
	XMLName    xml.Name  `json:"-" xml:"alert"`
	Identifier string    `json:"identifier" xml:"identifier"`
	Sender     string    `json:"sender,omitempty" xml:"sender"`
	Sent       *CAPTime  `json:"sent,omitempty" xml:"sent"`
	Status     string    `json:"status,omitempty" xml:"status"`
	MsgType    string    `json:"msgType,omitempty" xml:"msgType"`
	Source     string    `json:"source,omitempty" xml:"source"`
	Scope      string    `json:"scope,omitempty" xml:"scope"`
	Code       []string  `json:"code,omitempty" xml:"code"`
	Note       string    `json:"note,omitempty" xml:"note"`
	References string    `json:"references,omitempty" xml:"references"`
	Incidents  string    `json:"incidents,omitempty" xml:"incidents"`
	Info       []CAPInfo `json:"info,omitempty" xml:"info"`
}

// CAPInfo carries the details of one event described by an alert.
type CAPInfo struct {
	Language     string          `json:"language,omitempty" xml:"language"`
	Category     []string        `json:"category,omitempty" xml:"category"`
	Event        string          `json:"event,omitempty" xml:"event"`
	ResponseType []string        `json:"responseType,omitempty" xml:"responseType"`
	Urgency      string          `json:"urgency,omitempty" xml:"urgency"`
	Severity     string          `json:"severity,omitempty" xml:"severity"`
	Certainty    string          `json:"certainty,omitempty" xml:"certainty"`
	EventCode    []CAPNamedValue `json:"eventCode,omitempty" xml:"eventCode"`
	Effective    *CAPTime        `json:"effective,omitempty" xml:"effective"`
	Onset        *CAPTime        `json:"onset,omitempty" xml:"onset"`
	Expires      *CAPTime        `json:"expires,omitempty" xml:"expires"`
	SenderName   string          `json:"senderName,omitempty" xml:"senderName"`
	Headline     string          `json:"headline,omitempty" xml:"headline"`
	Description  string          `json:"description,omitempty" xml:"description"`
	Instruction  string          `json:"instruction,omitempty" xml:"instruction"`
	Web          string          `json:"web,omitempty" xml:"web"`
	Contact      string          `json:"contact,omitempty" xml:"contact"`
	Parameter    []CAPNamedValue `json:"parameter,omitempty" xml:"parameter"`
	Resource     []CAPResource   `json:"resource,omitempty" xml:"resource"`
	Area         []CAPArea       `json:"area,omitempty" xml:"area"`
}

// CAPArea describes one geographic area an info block applies to.
// Polygon rings are whitespace-separated "lon,lat" pairs; geocode values
// are 12-digit ARS codes for the feeds we consume.
type CAPArea struct {
	AreaDesc string          `json:"areaDesc,omitempty" xml:"areaDesc"`
	Polygon  []string        `json:"polygon,omitempty" xml:"polygon"`
	Circle   []string        `json:"circle,omitempty" xml:"circle"`
	Geocode  []CAPNamedValue `json:"geocode,omitempty" xml:"geocode"`
	Altitude string          `json:"altitude,omitempty" xml:"altitude"`
	Ceiling  string          `json:"ceiling,omitempty" xml:"ceiling"`
}

// CAPNamedValue is the name/value pair used by geocode, eventCode and
// parameter elements.
type CAPNamedValue struct {
	ValueName string `json:"valueName" xml:"valueName"`
	Value     string `json:"value" xml:"value"`
}

// CAPResource points at a supplementary digital resource.
type CAPResource struct {
	ResourceDesc string `json:"resourceDesc,omitempty" xml:"resourceDesc"`
	MimeType     string `json:"mimeType,omitempty" xml:"mimeType"`
	Size         int    `json:"size,omitempty" xml:"size"`
	URI          string `json:"uri,omitempty" xml:"uri"`
	DerefURI     string `json:"derefUri,omitempty" xml:"derefUri"`
	Digest       string `json:"digest,omitempty" xml:"digest"`
}

// ParseCAPXML decodes a CAP alert from its XML representation.
func ParseCAPXML(data []byte) (*CAPAlert, error) {
	var alert CAPAlert
	if err := xml.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ReferenceIDs extracts the alert identifiers from the `references`
// element, which is a whitespace-separated list of "sender,id,sent"
// tuples. Malformed tuples are skipped.
func (a *CAPAlert) ReferenceIDs() []string {
	if a.References == "" {
		return nil
	}
	var ids []string
	for _, ref := range strings.Fields(a.References) {
		parts := strings.Split(ref, ",")
		if len(parts) != 3 {
			continue
		}
		ids = append(ids, parts[1])
	}
	return ids
}

// IsCancel reports whether this alert revokes its referenced alerts.
func (a *CAPAlert) IsCancel() bool {
	return strings.EqualFold(a.MsgType, "cancel")
}
