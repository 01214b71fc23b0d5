// Package output renders command results.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ugorji/go/codec"

	"github.com/codefionn/go-blueutil/internal/radio"
)

// Format selects how device lists are rendered.
type Format string

const (
	FormatDefault    Format = "default"
	FormatNewDefault Format = "new-default"
	FormatJSON       Format = "json"
	FormatJSONPretty Format = "json-pretty"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatDefault, FormatNewDefault, FormatJSON, FormatJSONPretty}

// ParseFormat parses a format name. The empty string selects FormatDefault.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatDefault, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// PrintOptions selects the columns of a device line.
type PrintOptions struct {
	ShowAddress   bool
	ShowName      bool
	ShowConnected bool
	ShowRSSI      bool
	ShowPairing   bool
	ShowIncoming  bool
}

var (
	All = PrintOptions{
		ShowAddress:   true,
		ShowName:      true,
		ShowConnected: true,
		ShowRSSI:      true,
		ShowPairing:   true,
		ShowIncoming:  true,
	}
	Basic = PrintOptions{
		ShowAddress:   true,
		ShowName:      true,
		ShowConnected: true,
	}
)

// States answers the per-device state queries a rendering needs.
// radio.Adapter satisfies it.
type States interface {
	IsConnected(d radio.Device) bool
	IsPaired(d radio.Device) bool
}

// Record is the JSON form of a device line. Hidden columns are omitted.
type Record struct {
	Address   string `json:"address,omitempty"`
	Name      string `json:"name,omitempty"`
	Connected *bool  `json:"connected,omitempty"`
	RSSI      *int   `json:"rssi,omitempty"`
	Paired    *bool  `json:"paired,omitempty"`
	Incoming  *bool  `json:"incoming,omitempty"`
}

// NewRecord collects the columns of d selected by opts.
func NewRecord(d radio.Device, states States, opts PrintOptions) Record {
	var r Record
	if opts.ShowAddress {
		r.Address = d.Address()
	}
	if opts.ShowName {
		r.Name = d.NameOrAddress()
		if r.Name == "" {
			r.Name = "-"
		}
	}
	if opts.ShowConnected {
		v := states.IsConnected(d)
		r.Connected = &v
	}
	if opts.ShowRSSI {
		v := d.RSSI()
		r.RSSI = &v
	}
	if opts.ShowPairing {
		v := states.IsPaired(d)
		r.Paired = &v
	}
	if opts.ShowIncoming {
		v := d.IsIncoming()
		r.Incoming = &v
	}
	return r
}

// Line renders the record as comma-joined "Key: Value" fields.
func (r Record) Line() string {
	var pieces []string
	if r.Address != "" {
		pieces = append(pieces, "Address: "+r.Address)
	}
	if r.Name != "" {
		pieces = append(pieces, "Name: "+r.Name)
	}
	if r.Connected != nil {
		pieces = append(pieces, "Connected: "+yesNo(*r.Connected))
	}
	if r.RSSI != nil {
		pieces = append(pieces, fmt.Sprintf("RSSI: %d dbm", *r.RSSI))
	}
	if r.Paired != nil {
		pieces = append(pieces, "Paired: "+yesNo(*r.Paired))
	}
	if r.Incoming != nil {
		pieces = append(pieces, "Incoming: "+yesNo(*r.Incoming))
	}
	return strings.Join(pieces, ", ")
}

// Fields returns the visible columns keyed by their JSON names. A hidden
// column is absent rather than false.
func (r Record) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, 6)
	if r.Address != "" {
		fields["address"] = r.Address
	}
	if r.Name != "" {
		fields["name"] = r.Name
	}
	if r.Connected != nil {
		fields["connected"] = *r.Connected
	}
	if r.RSSI != nil {
		fields["rssi"] = *r.RSSI
	}
	if r.Paired != nil {
		fields["paired"] = *r.Paired
	}
	if r.Incoming != nil {
		fields["incoming"] = *r.Incoming
	}
	return fields
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// NoDevices is printed in place of an empty text listing.
const NoDevices = "No devices found."

// Printer writes results to an output stream.
type Printer struct {
	w      io.Writer
	format Format
	states States
	handle *codec.JsonHandle
}

func NewPrinter(w io.Writer, format Format, states States) *Printer {
	h := &codec.JsonHandle{}
	h.TypeInfos = codec.NewTypeInfos([]string{"json"})
	h.HTMLCharsAsIs = true
	h.Canonical = true
	if format == FormatJSONPretty {
		h.Indent = 2
	}

	return &Printer{w: w, format: format, states: states, handle: h}
}

// Devices renders a device listing.
func (p *Printer) Devices(devices []radio.Device, opts PrintOptions) error {
	records := make([]Record, 0, len(devices))
	for _, d := range devices {
		records = append(records, NewRecord(d, p.states, opts))
	}

	switch p.format {
	case FormatJSON, FormatJSONPretty:
		list := make([]map[string]interface{}, 0, len(records))
		for _, r := range records {
			list = append(list, r.Fields())
		}
		return p.json(list)
	}

	if len(records) == 0 {
		return p.Message(NoDevices)
	}
	for _, r := range records {
		if err := p.Message(r.Line()); err != nil {
			return err
		}
	}
	return nil
}

// DeviceInfo renders every column of a single device under a heading.
func (p *Printer) DeviceInfo(d radio.Device) error {
	r := NewRecord(d, p.states, All)

	switch p.format {
	case FormatJSON, FormatJSONPretty:
		return p.json(r.Fields())
	}

	if err := p.Message("Device Information:"); err != nil {
		return err
	}
	return p.Message(r.Line())
}

// Bool prints a state flag as 1 or 0.
func (p *Printer) Bool(b bool) error {
	if b {
		return p.Message("1")
	}
	return p.Message("0")
}

func (p *Printer) Int(i int) error {
	return p.Message(strconv.Itoa(i))
}

func (p *Printer) Message(msg string) error {
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func (p *Printer) json(v interface{}) error {
	var data []byte
	if err := codec.NewEncoderBytes(&data, p.handle).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	_, err := p.w.Write(data)
	return err
}
