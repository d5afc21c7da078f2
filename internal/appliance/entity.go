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
	"fmt"
	"net/http"
	"sort"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/go-resty/resty/v2"
)

// Entity is an instance or image as inventoried by the appliance. It
// implements tagmap.Reader.
type Entity struct {
	client     *Client
	collection string

	ID     string `json:"id"`
	Name   string `json:"name"`
	EMSRef string `json:"ems_ref"`
}

type label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type tag struct {
	Name           string `json:"name"`
	Categorization struct {
		DisplayName string `json:"display_name"`
	} `json:"categorization"`
}

type entityDetails struct {
	Labels []label `json:"labels"`
	Tags   []tag   `json:"tags"`
}

func collectionOf(kind tagmap.EntityKind) (string, error) {
	switch kind {
	case tagmap.KindInstance:
		return "instances", nil
	case tagmap.KindImage:
		return "templates", nil
	default:
		return "", fmt.Errorf("unsupported entity kind %q", kind)
	}
}

// FindEntity returns the entity whose provider reference is emsRef, e.g. an
// EC2 instance ID.
func (c *Client) FindEntity(ctx context.Context, kind tagmap.EntityKind, emsRef string) (*Entity, error) {
	collection, err := collectionOf(kind)
	if err != nil {
		return nil, err
	}

	var list struct {
		Resources []*Entity `json:"resources"`
	}
	err = c.do(ctx, http.MethodGet, "/api/"+collection, nil, &list, func(r *resty.Request) {
		r.SetQueryParam("expand", "resources").
			SetQueryParam("attributes", "id,name,ems_ref").
			SetQueryParam("filter[]", "ems_ref="+emsRef)
	})
	if err != nil {
		return nil, err
	}

	if len(list.Resources) == 0 {
		return nil, fmt.Errorf("%w: %s with ems_ref %s", ErrNotFound, kind, emsRef)
	}
	e := list.Resources[0]
	e.client = c
	e.collection = collection
	return e, nil
}

// Read implements tagmap.Reader for the Labels and Smart Management fields.
func (e *Entity) Read(ctx context.Context, field string) (tagmap.Summary, error) {
	var details entityDetails
	err := e.client.do(ctx, http.MethodGet, fmt.Sprintf("/api/%s/%s", e.collection, e.ID), nil, &details,
		func(r *resty.Request) { r.SetQueryParam("attributes", "labels,tags") })
	if err != nil {
		return nil, err
	}

	switch field {
	case tagmap.FieldLabels:
		summary := make(tagmap.Summary, len(details.Labels))
		for _, l := range details.Labels {
			summary[l.Name] = append(summary[l.Name], l.Value)
		}
		return summary, nil

	case tagmap.FieldSmartManagement:
		var companyTags []string
		for _, t := range details.Tags {
			if t.Categorization.DisplayName != "" {
				companyTags = append(companyTags, t.Categorization.DisplayName)
			}
		}
		sort.Strings(companyTags)
		if len(companyTags) == 0 {
			companyTags = []string{tagmap.NoCompanyTags}
		}
		return tagmap.Summary{tagmap.RowCompanyTags: companyTags}, nil

	default:
		return nil, fmt.Errorf("unsupported summary field %q", field)
	}
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s/%s (%s)", e.collection, e.ID, e.EMSRef)
}
