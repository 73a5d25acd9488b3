package domain

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload serializes a product into the binary payload kept by the
// catalog index: a protobuf google.protobuf.Struct with name and attributes.
func EncodePayload(p Product) ([]byte, error) {
	fields := map[string]any{
		"name": p.Name,
	}
	if len(p.Attributes) > 0 {
		fields["attributes"] = p.Attributes
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload for %s: %w", p.Key(), err)
	}

	payload, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", p.Key(), err)
	}

	return payload, nil
}

func DecodePayload(key ProductKey, payload []byte) (Product, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(payload, &st); err != nil {
		return Product{}, fmt.Errorf("failed to unmarshal payload for %s: %w", key, err)
	}

	fields := st.AsMap()
	product := Product{Kind: key.Kind, ID: key.ID}
	if name, ok := fields["name"].(string); ok {
		product.Name = name
	}
	if attrs, ok := fields["attributes"].(map[string]any); ok {
		product.Attributes = attrs
	}

	return product, nil
}
