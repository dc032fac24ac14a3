package catalog

import (
	"encoding/json"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var protoMessageType = reflect.TypeFor[proto.Message]()

// ValueFromJSON parses raw JSON into a fresh value of type t, the value type
// of some stream. Protobuf messages use the protobuf JSON mapping.
func ValueFromJSON(t reflect.Type, raw json.RawMessage) (any, error) {
	if t.Kind() == reflect.Pointer && t.Implements(protoMessageType) {
		m := reflect.New(t.Elem()).Interface().(proto.Message)
		if err := protojson.Unmarshal(raw, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	p := reflect.New(t)
	if err := json.Unmarshal(raw, p.Interface()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}

// ValueJSON renders a stream value as JSON.
func ValueJSON(v any) (json.RawMessage, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return json.Marshal(v)
}
