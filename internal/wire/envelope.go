// Package wire implements the streaming envelope named in spec §6.2:
// the single value type the BIDS core exposes to the external transport
// layer, carrying everything needed to reconstruct an Incremental on the
// other end with the §4.3/§8 round-trip law holding exactly.
package wire

import (
	"encoding/base64"
	"encoding/json"

	"github.com/francoispqt/gojay"
	"github.com/openneuro/rtbids/internal/bidserrors"
)

// Envelope is the wire representation of spec §6.2:
//
//	{version:u32, image_dtype, image_shape:[u32;N], image_bytes,
//	 affine:[f64;16], header_fields:map, metadata:map, dataset_desc:map,
//	 readme:string}
type Envelope struct {
	Version      uint32
	ImageDType   int16
	ImageShape   []uint32
	ImageBytes   []byte // little-endian float64 voxel data
	Affine       [16]float64
	HeaderFields map[string]any
	Metadata     map[string]any
	DatasetDesc  map[string]any
	Readme       string
}

// jsonEnvelope is the JSON+base64 wire form spec §6.2 allows as an
// alternative to the binary form: voxel bytes are base64-encoded so the
// whole envelope round-trips through a text-safe transport.
type jsonEnvelope struct {
	Version      uint32         `json:"version"`
	ImageDType   int16          `json:"image_dtype"`
	ImageShape   []uint32       `json:"image_shape"`
	ImageBytes   string         `json:"image_bytes"` // base64
	Affine       [16]float64    `json:"affine"`
	HeaderFields map[string]any `json:"header_fields"`
	Metadata     map[string]any `json:"metadata"`
	DatasetDesc  map[string]any `json:"dataset_desc"`
	Readme       string         `json:"readme"`
}

// EncodeJSON renders e as the JSON+base64 envelope. The sidecar JSON
// format itself is mandated verbatim by spec §6.1 (UTF-8, sorted keys,
// indent 4); this wire envelope is a separate, RPC-facing format and
// uses stdlib encoding/json's default (unsorted, compact) behavior,
// which is what every JSON-over-the-wire format in the example pack
// does for transport payloads as opposed to on-disk sidecars.
func (e *Envelope) EncodeJSON() ([]byte, error) {
	je := jsonEnvelope{
		Version:      e.Version,
		ImageDType:   e.ImageDType,
		ImageShape:   e.ImageShape,
		ImageBytes:   base64.StdEncoding.EncodeToString(e.ImageBytes),
		Affine:       e.Affine,
		HeaderFields: e.HeaderFields,
		Metadata:     e.Metadata,
		DatasetDesc:  e.DatasetDesc,
		Readme:       e.Readme,
	}
	data, err := json.Marshal(je)
	if err != nil {
		return nil, bidserrors.IO("Envelope.EncodeJSON", err)
	}
	return data, nil
}

// DecodeEnvelopeJSON parses the JSON+base64 envelope produced by
// EncodeJSON.
func DecodeEnvelopeJSON(data []byte) (*Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeJSON", err)
	}
	raw, err := base64.StdEncoding.DecodeString(je.ImageBytes)
	if err != nil {
		return nil, bidserrors.IO("DecodeEnvelopeJSON", err)
	}
	return &Envelope{
		Version:      je.Version,
		ImageDType:   je.ImageDType,
		ImageShape:   je.ImageShape,
		ImageBytes:   raw,
		Affine:       je.Affine,
		HeaderFields: je.HeaderFields,
		Metadata:     je.Metadata,
		DatasetDesc:  je.DatasetDesc,
		Readme:       je.Readme,
	}, nil
}

// gojayEnvelope wraps Envelope's map-valued sections (header_fields,
// metadata, dataset_desc) so they can use gojay's streaming encoder for
// the binary wire path (internal/wire's high-throughput route,
// DESIGN.md), while the fixed scalar/array fields are written with
// plain binary framing in binary.go.
type gojayEnvelope struct {
	HeaderFields jsonMap
	Metadata     jsonMap
	DatasetDesc  jsonMap
}

func (g *gojayEnvelope) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddObjectKey("header_fields", g.HeaderFields)
	enc.AddObjectKey("metadata", g.Metadata)
	enc.AddObjectKey("dataset_desc", g.DatasetDesc)
}

func (g *gojayEnvelope) IsNil() bool { return g == nil }

func (g *gojayEnvelope) NKeys() int { return 3 }

func (g *gojayEnvelope) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "header_fields":
		return dec.Object(&g.HeaderFields)
	case "metadata":
		return dec.Object(&g.Metadata)
	case "dataset_desc":
		return dec.Object(&g.DatasetDesc)
	}
	return nil
}

func marshalMapSections(e *Envelope) ([]byte, error) {
	g := &gojayEnvelope{
		HeaderFields: jsonMap(e.HeaderFields),
		Metadata:     jsonMap(e.Metadata),
		DatasetDesc:  jsonMap(e.DatasetDesc),
	}
	data, err := gojay.MarshalJSONObject(g)
	if err != nil {
		return nil, bidserrors.IO("wire.marshalMapSections", err)
	}
	return data, nil
}

func unmarshalMapSections(data []byte, e *Envelope) error {
	g := &gojayEnvelope{}
	if err := gojay.UnmarshalJSONObject(data, g); err != nil {
		return bidserrors.IO("wire.unmarshalMapSections", err)
	}
	e.HeaderFields = map[string]any(g.HeaderFields)
	e.Metadata = map[string]any(g.Metadata)
	e.DatasetDesc = map[string]any(g.DatasetDesc)
	return nil
}
