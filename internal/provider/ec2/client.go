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

// Package ec2 exposes EC2 instances and images as taggable entities.
package ec2

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexandremahdhaoui/tagconverge/pkg/tagmap"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"
)

// ProviderType is the provider type of EC2 in entity type options.
const ProviderType = "Amazon"

var (
	// ErrNotFound is returned when no entity matches a lookup.
	ErrNotFound = errors.New("ec2 entity not found")
	// ErrAmbiguous is returned when several entities match a name.
	ErrAmbiguous = errors.New("ec2 entity name is ambiguous")
)

// API is the subset of the EC2 client used by this package.
type API interface {
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteTags(ctx context.Context, params *ec2.DeleteTagsInput, optFns ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error)
	DescribeTags(ctx context.Context, params *ec2.DescribeTagsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// IdentityAPI is the subset of the STS client used to check credentials.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Config configures a Client.
type Config struct {
	Region  string
	Profile string
}

// Client looks up EC2 entities.
type Client struct {
	api      API
	identity IdentityAPI
	log      logr.Logger
}

// NewClient loads the default AWS configuration chain and creates a Client.
func NewClient(ctx context.Context, cfg Config, log logr.Logger) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewFromAPI(ec2.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), log), nil
}

// NewFromAPI creates a Client from existing API clients.
func NewFromAPI(api API, identity IdentityAPI, log logr.Logger) *Client {
	return &Client{api: api, identity: identity, log: log}
}

// Identity is the caller identity reported by STS.
type Identity struct {
	Account string
	ARN     string
}

// CheckCredentials verifies the configured credentials.
func (c *Client) CheckCredentials(ctx context.Context) (Identity, error) {
	out, err := c.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get caller identity: %w", err)
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
	}, nil
}

// Lookup returns the entity with the given ID, or the given name if id is
// empty. Instances are named by their Name tag, images by their image name.
func (c *Client) Lookup(ctx context.Context, kind tagmap.EntityKind, id, name string) (*Resource, error) {
	switch kind {
	case tagmap.KindInstance:
		return c.lookupInstance(ctx, id, name)
	case tagmap.KindImage:
		return c.lookupImage(ctx, id, name)
	default:
		return nil, fmt.Errorf("unsupported entity kind %q", kind)
	}
}

func (c *Client) lookupInstance(ctx context.Context, id, name string) (*Resource, error) {
	input := &ec2.DescribeInstancesInput{}
	if id != "" {
		input.InstanceIds = []string{id}
	} else {
		input.Filters = []types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		}
	}

	out, err := c.api.DescribeInstances(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: instance %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}

	var ids []string
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			ids = append(ids, aws.ToString(instance.InstanceId))
		}
	}

	return c.single(tagmap.KindInstance, id, name, ids)
}

func (c *Client) lookupImage(ctx context.Context, id, name string) (*Resource, error) {
	input := &ec2.DescribeImagesInput{Owners: []string{"self"}}
	if id != "" {
		input.ImageIds = []string{id}
	} else {
		input.Filters = []types.Filter{
			{Name: aws.String("name"), Values: []string{name}},
			{Name: aws.String("state"), Values: []string{"available"}},
		}
	}

	out, err := c.api.DescribeImages(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}

	ids := make([]string, 0, len(out.Images))
	for _, image := range out.Images {
		ids = append(ids, aws.ToString(image.ImageId))
	}

	return c.single(tagmap.KindImage, id, name, ids)
}

func (c *Client) single(kind tagmap.EntityKind, id, name string, ids []string) (*Resource, error) {
	ref := id
	if ref == "" {
		ref = fmt.Sprintf("named %q", name)
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, ref)
	case 1:
		c.log.V(1).Info("resolved ec2 entity", "kind", kind, "ref", ref, "id", ids[0])
		return &Resource{client: c, id: ids[0], kind: kind}, nil
	default:
		return nil, fmt.Errorf("%w: %d %ss %s: %v", ErrAmbiguous, len(ids), kind, ref, ids)
	}
}

// ErrorCode returns the EC2 API error code of err, or "" if err is not an
// API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	switch ErrorCode(err) {
	case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed",
		"InvalidAMIID.NotFound", "InvalidAMIID.Unavailable", "InvalidAMIID.Malformed":
		return true
	}
	return false
}
