package client

import (
	"context"
	"net/url"
	"strings"
)

// Descriptor is one catalog entry.
type Descriptor struct {
	Name   string         `json:"name"`
	Class  string         `json:"class"`
	Module string         `json:"module"`
	Doc    string         `json:"doc,omitempty"`
	JSON   map[string]any `json:"json"`
}

// DecodedDescriptor is a descriptor the server accepted, in canonical form.
type DecodedDescriptor struct {
	Name string         `json:"name"`
	JSON map[string]any `json:"json"`
}

type DescriptorsClient struct {
	client *Client
}

// List returns the catalog, restricted to modules when any are given.
func (d *DescriptorsClient) List(ctx context.Context, modules ...string) ([]Descriptor, error) {
	path := "/api/v1/descriptors"
	if len(modules) > 0 {
		path += "?module=" + url.QueryEscape(strings.Join(modules, ","))
	}
	var resp struct {
		Descriptors []Descriptor `json:"descriptors"`
	}
	if err := d.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Descriptors, nil
}

// Decode validates descriptors in the {name, args} form.
func (d *DescriptorsClient) Decode(ctx context.Context, descriptors []map[string]any) ([]DecodedDescriptor, error) {
	req := struct {
		Descriptors []map[string]any `json:"descriptors"`
	}{descriptors}
	var resp struct {
		Descriptors []DecodedDescriptor `json:"descriptors"`
	}
	if err := d.client.post(ctx, "/api/v1/descriptors/decode", req, &resp); err != nil {
		return nil, err
	}
	return resp.Descriptors, nil
}
