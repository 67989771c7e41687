package codec

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/registry"
)

// RemoteRegistry resolves schemas from a Confluent-compatible schema registry.
// The underlying client caches parsed schemas by id.
type RemoteRegistry struct {
	client *registry.Client
}

func NewRemoteRegistry(baseURL string, httpClient *http.Client) (*RemoteRegistry, error) {
	var opts []registry.ClientFunc
	if httpClient != nil {
		opts = append(opts, registry.WithHTTPClient(httpClient))
	}
	client, err := registry.NewClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create schema registry client: %w", err)
	}
	return &RemoteRegistry{client: client}, nil
}

// Schema returns ErrUnknownSchema when the registry does not know id and
// ErrRegistryUnavailable when it could not be asked.
func (r *RemoteRegistry) Schema(ctx context.Context, id int) (avro.Schema, error) {
	schema, err := r.client.GetSchema(ctx, id)
	if err != nil {
		return nil, classifyRegistryError(fmt.Sprintf("schema %d", id), err)
	}
	return schema, nil
}

func (r *RemoteRegistry) Register(ctx context.Context, subject string, schema avro.Schema) (int, error) {
	id, _, err := r.client.CreateSchema(ctx, subject, schema.String())
	if err != nil {
		return 0, classifyRegistryError("register "+subject, err)
	}
	return id, nil
}

func classifyRegistryError(op string, err error) error {
	if status, ok := registryStatus(err); ok && status == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %v", ErrUnknownSchema, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRegistryUnavailable, op, err)
}

func registryStatus(err error) (int, bool) {
	var regErr registry.Error
	if errors.As(err, &regErr) {
		return regErr.StatusCode, true
	}
	var regErrPtr *registry.Error
	if errors.As(err, &regErrPtr) && regErrPtr != nil {
		return regErrPtr.StatusCode, true
	}
	return 0, false
}
