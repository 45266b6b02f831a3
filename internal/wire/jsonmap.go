package wire

import (
	"fmt"

	"github.com/francoispqt/gojay"
)

// jsonMap adapts a generic string→JSON-scalar-or-array map (spec §3.2's
// metadata map shape) to gojay's MarshalerJSONObject/UnmarshalerJSONObject
// interfaces, since gojay's code-generated fast path only covers
// concrete struct shapes and the metadata map's key set is open-ended by
// design (forward-compatible sidecar keys).
type jsonMap map[string]any

var _ gojay.MarshalerJSONObject = jsonMap{}
var _ gojay.UnmarshalerJSONObject = (*jsonMap)(nil)

func (m jsonMap) IsNil() bool { return m == nil }

func (m jsonMap) MarshalJSONObject(enc *gojay.Encoder) {
	for k, v := range m {
		encodeValue(enc, k, v)
	}
}

func encodeValue(enc *gojay.Encoder, key string, v any) {
	switch x := v.(type) {
	case nil:
		// gojay has no null-key helper worth depending on here; an
		// absent key and a JSON null are equivalent for every consumer
		// of this map (internal/incremental never distinguishes them).
		return
	case string:
		enc.AddStringKey(key, x)
	case bool:
		enc.AddBoolKey(key, x)
	case float64:
		enc.AddFloatKey(key, x)
	case float32:
		enc.AddFloatKey(key, float64(x))
	case int:
		enc.AddFloatKey(key, float64(x))
	case int64:
		enc.AddFloatKey(key, float64(x))
	case []any:
		enc.AddArrayKey(key, scalarArray(x))
	case []float64:
		arr := make(scalarArray, len(x))
		for i, f := range x {
			arr[i] = f
		}
		enc.AddArrayKey(key, arr)
	case map[string]any:
		enc.AddObjectKey(key, jsonMap(x))
	default:
		enc.AddStringKey(key, fmt.Sprintf("%v", x))
	}
}

func (m *jsonMap) NKeys() int { return 0 }

func (m *jsonMap) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	var v any
	if err := dec.Interface(&v); err != nil {
		return err
	}
	if *m == nil {
		*m = make(jsonMap)
	}
	(*m)[key] = v
	return nil
}

// scalarArray adapts a []any of JSON scalars to gojay's
// MarshalerJSONArray interface.
type scalarArray []any

func (a scalarArray) IsNil() bool   { return a == nil }
func (a scalarArray) MarshalJSONArray(enc *gojay.Encoder) {
	for _, v := range a {
		switch x := v.(type) {
		case string:
			enc.AddString(x)
		case bool:
			enc.AddBool(x)
		case float64:
			enc.AddFloat(x)
		case int:
			enc.AddFloat(float64(x))
		case int64:
			enc.AddFloat(float64(x))
		case nil:
			continue
		case map[string]any:
			enc.AddObject(jsonMap(x))
		default:
			enc.AddString(fmt.Sprintf("%v", x))
		}
	}
}
