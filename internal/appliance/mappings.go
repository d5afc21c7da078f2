// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package appliance

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
)

const tagMappingsPath = "/api/tag_mappings"

// Mappings returns the tag mapping API of the appliance.
func (c *Client) Mappings() tagmap.MappingAPI {
	return mappingAPI{client: c}
}

type mappingAPI struct {
	client *Client
}

// EntityTypes reads the entity type options of the mapping form.
func (m mappingAPI) EntityTypes(ctx context.Context) ([]string, error) {
	var options struct {
		Data struct {
			EntityTypes []string `json:"entity_types"`
		} `json:"data"`
	}
	if err := m.client.do(ctx, http.MethodOptions, tagMappingsPath, nil, &options); err != nil {
		return nil, err
	}
	return options.Data.EntityTypes, nil
}

func (m mappingAPI) CreateMapping(ctx context.Context, mapping tagmap.Mapping) (string, error) {
	body := struct {
		Action   string         `json:"action"`
		Resource tagmap.Mapping `json:"resource"`
	}{Action: "create", Resource: mapping}

	var out struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := m.client.do(ctx, http.MethodPost, tagMappingsPath, body, &out); err != nil {
		return "", err
	}
	if len(out.Results) == 0 || out.Results[0].ID == "" {
		return "", fmt.Errorf("%w: create tag mapping returned no id", ErrActionRejected)
	}
	return out.Results[0].ID, nil
}

func (m mappingAPI) DeleteMapping(ctx context.Context, id string) error {
	err := m.client.do(ctx, http.MethodDelete, tagMappingsPath+"/"+id, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", tagmap.ErrMappingNotFound, err)
	}
	return err
}
