package codec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-orders/internal/codec/schemas"

	"github.com/hamba/avro/v2"
)

var (
	ErrUnknownSchema    = errors.New("codec: unknown schema id")
	ErrMalformedPayload = errors.New("codec: malformed payload")

	// ErrRegistryUnavailable means the schema could not be looked up. The
	// payload itself may be fine.
	ErrRegistryUnavailable = errors.New("codec: schema registry unavailable")
)

// OrderSubject is the registry subject the order schema is registered under.
const OrderSubject = "orders-value"

// Registry resolves schema ids carried in the wire header.
type Registry interface {
	Schema(ctx context.Context, id int) (avro.Schema, error)
	Register(ctx context.Context, subject string, schema avro.Schema) (int, error)
}

// OrderSchema parses the embedded order schema.
func OrderSchema() (avro.Schema, error) {
	schema, err := avro.Parse(string(schemas.Order))
	if err != nil {
		return nil, fmt.Errorf("parse order schema: %w", err)
	}
	return schema, nil
}

// StaticRegistry is an in-process registry. It serves deployments without a
// schema registry and tests.
type StaticRegistry struct {
	mu     sync.RWMutex
	byID   map[int]avro.Schema
	byText map[string]int
	nextID int
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		byID:   make(map[int]avro.Schema),
		byText: make(map[string]int),
		nextID: 1,
	}
}

// NewOrderRegistry returns a static registry holding the order schema under id.
func NewOrderRegistry(id int) (*StaticRegistry, error) {
	schema, err := OrderSchema()
	if err != nil {
		return nil, err
	}
	r := NewStaticRegistry()
	if err := r.Add(id, schema); err != nil {
		return nil, err
	}
	return r, nil
}

// Add stores schema under a fixed id.
func (r *StaticRegistry) Add(id int, schema avro.Schema) error {
	if id < 0 {
		return fmt.Errorf("codec: schema id cannot be negative: %d", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok && existing.String() != schema.String() {
		return fmt.Errorf("codec: schema id %d already bound to a different schema", id)
	}
	r.byID[id] = schema
	r.byText[schema.String()] = id
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return nil
}

func (r *StaticRegistry) Schema(_ context.Context, id int) (avro.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSchema, id)
	}
	return schema, nil
}

// Register returns the existing id for an already known schema.
func (r *StaticRegistry) Register(_ context.Context, _ string, schema avro.Schema) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byText[schema.String()]; ok {
		return id, nil
	}
	id := r.nextID
	r.nextID++
	r.byID[id] = schema
	r.byText[schema.String()] = id
	return id, nil
}
