package sfmc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Namespaces of the partner API wire format.
const (
	soapNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	xsiNS     = "http://www.w3.org/2001/XMLSchema-instance"
	etNS      = "http://exacttarget.com"
	partnerNS = "http://exacttarget.com/wsdl/partnerAPI"
)

// soapEnvelope is the outer request document. The header carries the
// bearer token in the fueloauth element; the body is the pre-marshaled
// operation message.
type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soap:Envelope"`
	SoapAttr  string     `xml:"xmlns:soap,attr"`
	XSIAttr   string     `xml:"xmlns:xsi,attr"`
	Header    soapHeader `xml:"soap:Header"`
	BodyInner innerXML   `xml:"soap:Body"`
}

type soapHeader struct {
	FuelOAuth fuelOAuth `xml:"fueloauth"`
}

type fuelOAuth struct {
	XMLNS string `xml:"xmlns,attr"`
	Token string `xml:",chardata"`
}

type innerXML struct {
	Raw []byte `xml:",innerxml"`
}

// buildEnvelope wraps a marshaled operation message with the envelope and
// the token header.
func buildEnvelope(token string, message any) ([]byte, error) {
	inner, err := xml.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal soap body: %w", err)
	}

	env := soapEnvelope{
		SoapAttr: soapNS,
		XSIAttr:  xsiNS,
		Header: soapHeader{
			FuelOAuth: fuelOAuth{XMLNS: etNS, Token: token},
		},
		BodyInner: innerXML{Raw: inner},
	}

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal soap envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// SimpleFilter is the partner API's SimpleFilterPart predicate:
// Property <operator> Value, e.g. CategoryID equals 1234.
type SimpleFilter struct {
	Property string
	Operator string
	Value    string
}

// FolderFilter builds the equals-predicate on an object's folder-key field.
func FolderFilter(folderKey, folderID string) *SimpleFilter {
	return &SimpleFilter{Property: folderKey, Operator: "equals", Value: folderID}
}

type simpleFilterXML struct {
	XSIType  string `xml:"xsi:type,attr"`
	Property string `xml:"Property"`
	Operator string `xml:"SimpleOperator"`
	Value    string `xml:"Value"`
}

// retrieveRequestMsg is the Retrieve operation body. ContinueRequest
// carries the prior RequestID when resuming a MoreDataAvailable sequence.
type retrieveRequestMsg struct {
	XMLName xml.Name        `xml:"RetrieveRequestMsg"`
	XMLNS   string          `xml:"xmlns,attr"`
	Request retrieveRequest `xml:"RetrieveRequest"`
}

type retrieveRequest struct {
	ObjectType      string           `xml:"ObjectType"`
	Properties      []string         `xml:"Properties"`
	ContinueRequest string           `xml:"ContinueRequest,omitempty"`
	Filter          *simpleFilterXML `xml:"Filter,omitempty"`
}

// saveRequestMsg covers Create/Update/Delete, which share one body shape
// differing only in the message element name.
type saveRequestMsg struct {
	XMLName xml.Name
	XMLNS   string     `xml:"xmlns,attr"`
	Objects soapObject `xml:"Objects"`
}

// soapObject marshals one API object: an Objects element whose xsi:type
// is the object type and whose children are the property values. Nested
// Records become nested elements; keys are emitted in sorted order so
// envelopes are deterministic.
type soapObject struct {
	Type  string
	Props Record
}

func (o soapObject) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xsi:type"}, Value: o.Type})
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := encodeProps(e, o.Props); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

func encodeProps(e *xml.Encoder, props Record) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := props[k]
		if v == nil {
			continue
		}
		elem := xml.StartElement{Name: xml.Name{Local: k}}
		switch val := v.(type) {
		case Record:
			if err := e.EncodeToken(elem); err != nil {
				return err
			}
			if err := encodeProps(e, val); err != nil {
				return err
			}
			if err := e.EncodeToken(elem.End()); err != nil {
				return err
			}
		case map[string]any:
			if err := e.EncodeToken(elem); err != nil {
				return err
			}
			if err := encodeProps(e, Record(val)); err != nil {
				return err
			}
			if err := e.EncodeToken(elem.End()); err != nil {
				return err
			}
		case []any:
			for _, item := range val {
				if err := encodeProps(e, Record{k: item}); err != nil {
					return err
				}
			}
		default:
			if err := e.EncodeElement(fmt.Sprint(val), elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// xmlNameFor maps an operation to its request message element, e.g.
// Create -> CreateRequest.
func xmlNameFor(operation string) xml.Name {
	return xml.Name{Local: operation + "Request"}
}

// definitionRequestMsg is the Describe operation body.
type definitionRequestMsg struct {
	XMLName          xml.Name `xml:"DefinitionRequestMsg"`
	XMLNS            string   `xml:"xmlns,attr"`
	DescribeRequests struct {
		ObjectDefinitionRequest struct {
			ObjectType string `xml:"ObjectType"`
		} `xml:"ObjectDefinitionRequest"`
	} `xml:"DescribeRequests"`
}

// soapResponse is the parsed response envelope, covering every operation:
// Retrieve fills Records, Create/Update/Delete fill SaveResults, Describe
// fills Definitions, and a protocol fault fills Fault.
type soapResponse struct {
	OverallStatus string
	RequestID     string
	Records       []Record
	SaveResults   []SaveResult
	Definitions   []FieldDefinition
	Fault         *SoapFault
}

// moreDataAvailable reports whether the server declared another page.
const overallStatusMore = "MoreDataAvailable"

func (r *soapResponse) moreDataAvailable() bool {
	return r.OverallStatus == overallStatusMore && r.RequestID != ""
}

func (r *soapResponse) ok() bool {
	return r.OverallStatus == "OK" || r.OverallStatus == overallStatusMore
}

// parseSoapResponse walks the response envelope with a token decoder.
// Result rows have no fixed schema, so they are parsed into Records with
// nested elements as nested Records.
func parseSoapResponse(body []byte) (*soapResponse, error) {
	resp := &soapResponse{}
	dec := xml.NewDecoder(bytes.NewReader(body))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse soap response: %w", err)
		}

		start, isStart := tok.(xml.StartElement)
		if !isStart {
			continue
		}

		switch start.Name.Local {
		case "Fault":
			fault, err := parseFault(dec, start)
			if err != nil {
				return nil, err
			}
			resp.Fault = fault
		case "OverallStatus":
			resp.OverallStatus, err = decodeText(dec, start)
			if err != nil {
				return nil, err
			}
		case "RequestID":
			resp.RequestID, err = decodeText(dec, start)
			if err != nil {
				return nil, err
			}
		case "Results":
			value, err := decodeElement(dec, start)
			if err != nil {
				return nil, err
			}
			switch v := value.(type) {
			case Record:
				if sr, ok := asSaveResult(v); ok {
					resp.SaveResults = append(resp.SaveResults, sr)
				} else {
					resp.Records = append(resp.Records, v)
				}
			case string:
				if v != "" {
					resp.Records = append(resp.Records, Record{"Value": v})
				}
			}
		case "ObjectDefinition":
			defs, err := parseObjectDefinition(dec)
			if err != nil {
				return nil, err
			}
			resp.Definitions = append(resp.Definitions, defs...)
		}
	}

	return resp, nil
}

func parseFault(dec *xml.Decoder, start xml.StartElement) (*SoapFault, error) {
	var raw struct {
		Code   string `xml:"faultcode"`
		String string `xml:"faultstring"`
	}
	if err := dec.DecodeElement(&raw, &start); err != nil {
		return nil, fmt.Errorf("failed to parse soap fault: %w", err)
	}
	return &SoapFault{Code: raw.Code, Message: raw.String}, nil
}

// decodeText consumes a leaf element and returns its character data.
func decodeText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", start.Name.Local, err)
	}
	return strings.TrimSpace(s), nil
}

// decodeElement reads an arbitrary element: a string for leaves, a Record
// for elements with children. Repeated child names collect into []any.
func decodeElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	record := Record{}
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", start.Name.Local, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if existing, ok := record[name]; ok {
				if list, isList := existing.([]any); isList {
					record[name] = append(list, child)
				} else {
					record[name] = []any{existing, child}
				}
			} else {
				record[name] = child
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(record) > 0 {
				return record, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}

// asSaveResult detects a Create/Update/Delete result row by its
// StatusCode/StatusMessage shape.
func asSaveResult(r Record) (SaveResult, bool) {
	if _, ok := r["StatusCode"]; !ok {
		return SaveResult{}, false
	}
	return SaveResult{
		StatusCode:    r.String("StatusCode"),
		StatusMessage: r.String("StatusMessage"),
		NewID:         r.String("NewID"),
		NewObjectID:   r.String("NewObjectID"),
	}, true
}

func parseObjectDefinition(dec *xml.Decoder) ([]FieldDefinition, error) {
	value, err := decodeElement(dec, xml.StartElement{Name: xml.Name{Local: "ObjectDefinition"}})
	if err != nil {
		return nil, err
	}
	record, ok := value.(Record)
	if !ok {
		return nil, nil
	}

	props, ok := record["Properties"]
	if !ok {
		return nil, nil
	}

	var defs []FieldDefinition
	appendDef := func(v any) {
		p, ok := v.(Record)
		if !ok {
			return
		}
		defs = append(defs, FieldDefinition{
			Name:        p.String("Name"),
			FieldType:   p.String("PropertyType"),
			IsRequired:  p.String("IsRequired") == "true",
			Retrievable: p.String("IsRetrievable") == "true",
		})
	}

	switch v := props.(type) {
	case []any:
		for _, item := range v {
			appendDef(item)
		}
	default:
		appendDef(v)
	}

	return defs, nil
}
