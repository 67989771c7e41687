package codec

import (
	"context"
	"encoding/binary"
	"fmt"

	"go-orders/pkg/models"

	"github.com/hamba/avro/v2"
)

// Payloads use the schema registry wire format: one magic byte, the schema id
// as a big-endian uint32, then the Avro binary body.
const (
	magicByte  byte = 0
	headerSize      = 5
)

// AvroCodec turns order payloads into models.Order and back.
type AvroCodec struct {
	registry Registry
}

func NewAvroCodec(registry Registry) *AvroCodec {
	return &AvroCodec{registry: registry}
}

// Decode reads a framed Avro payload and validates the resulting order.
func (c *AvroCodec) Decode(ctx context.Context, payload []byte) (models.Order, error) {
	var order models.Order

	if len(payload) < headerSize {
		return order, fmt.Errorf("%w: %d bytes is shorter than the wire header", ErrMalformedPayload, len(payload))
	}
	if payload[0] != magicByte {
		return order, fmt.Errorf("%w: unexpected magic byte 0x%02x", ErrMalformedPayload, payload[0])
	}

	id := int(binary.BigEndian.Uint32(payload[1:headerSize]))
	schema, err := c.registry.Schema(ctx, id)
	if err != nil {
		return order, err
	}

	if err := avro.Unmarshal(schema, payload[headerSize:], &order); err != nil {
		return order, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := order.Validate(); err != nil {
		return order, err
	}
	return order, nil
}

// Encode frames order with the given schema id.
func (c *AvroCodec) Encode(ctx context.Context, schemaID int, order models.Order) ([]byte, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	schema, err := c.registry.Schema(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	body, err := avro.Marshal(schema, order)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", order.ID, err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:headerSize], uint32(schemaID))
	return append(out, body...), nil
}
