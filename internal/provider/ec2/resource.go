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

package ec2

import (
	"context"
	"fmt"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Resource is a taggable EC2 instance or image. It implements
// mutation.TagAPI.
type Resource struct {
	client *Client
	id     string
	kind   tagmap.EntityKind
}

// ID returns the instance or image ID.
func (r *Resource) ID() string { return r.id }

// Kind returns the entity kind.
func (r *Resource) Kind() tagmap.EntityKind { return r.kind }

// Tags returns every tag of the resource.
func (r *Resource) Tags(ctx context.Context) (map[string]string, error) {
	tags := make(map[string]string)
	paginator := ec2.NewDescribeTagsPaginator(r.client.api, &ec2.DescribeTagsInput{
		Filters: []types.Filter{
			{Name: aws.String("resource-id"), Values: []string{r.id}},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe tags of %s: %w", r.id, err)
		}
		for _, tag := range page.Tags {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}

	return tags, nil
}

// SetTag creates or overwrites a tag.
func (r *Resource) SetTag(ctx context.Context, key, value string) error {
	_, err := r.client.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{r.id},
		Tags:      []types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	if err != nil {
		return fmt.Errorf("failed to create tag %s on %s: %w", key, r.id, err)
	}
	r.client.log.V(1).Info("tag set", "resource", r.id, "key", key, "value", value)
	return nil
}

// UnsetTag deletes the tag only if it still has value. A resource that no
// longer exists has no tag left to delete.
func (r *Resource) UnsetTag(ctx context.Context, key, value string) error {
	_, err := r.client.api.DeleteTags(ctx, &ec2.DeleteTagsInput{
		Resources: []string{r.id},
		Tags:      []types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	if err != nil {
		if isNotFound(err) {
			r.client.log.Info("resource is gone, nothing to untag", "resource", r.id, "key", key)
			return nil
		}
		return fmt.Errorf("failed to delete tag %s from %s: %w", key, r.id, err)
	}
	r.client.log.V(1).Info("tag unset", "resource", r.id, "key", key)
	return nil
}

func (r *Resource) String() string {
	return fmt.Sprintf("ec2 %s %s", r.kind, r.id)
}
