package twilio

import (
	"encoding/xml"
	"fmt"
)

// ContentType is the media type of TwiML responses.
const ContentType = "application/xml"

// Response is a TwiML document. Verbs are rendered in order.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text with Twilio's built-in voices.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Play plays an audio file.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

// Gather collects caller input and posts it to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Verbs         []any
}

// Redirect transfers control to another TwiML url.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// MessageVerb replies to an inbound SMS.
type MessageVerb struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// NewResponse creates a TwiML document with the given verbs.
func NewResponse(verbs ...any) *Response {
	return &Response{Verbs: verbs}
}

// Append adds verbs to the document.
func (r *Response) Append(verbs ...any) *Response {
	r.Verbs = append(r.Verbs, verbs...)
	return r
}

// Marshal renders the document with the XML declaration.
func (r *Response) Marshal() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// String renders the document, or an empty Response if it cannot be marshaled.
func (r *Response) String() string {
	b, err := r.Marshal()
	if err != nil {
		return xml.Header + "<Response></Response>"
	}
	return string(b)
}
