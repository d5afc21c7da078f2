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
	"time"

	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/go-resty/resty/v2"
)

// Task states and statuses reported by the appliance.
const (
	TaskStateFinished = "Finished"
	TaskStatusOk      = "Ok"
)

var (
	// ErrActionRejected is returned when the appliance refuses an action.
	ErrActionRejected = errors.New("appliance action rejected")
	// ErrTaskFailed is returned when a task finishes with a status other
	// than Ok.
	ErrTaskFailed = errors.New("appliance task failed")
)

// Provider is a cloud provider registered on the appliance.
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Task is an asynchronous appliance task.
type Task struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type actionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// FindProvider returns the provider with the given name.
func (c *Client) FindProvider(ctx context.Context, name string) (*Provider, error) {
	var list struct {
		Resources []*Provider `json:"resources"`
	}
	err := c.do(ctx, http.MethodGet, "/api/providers", nil, &list, func(r *resty.Request) {
		r.SetQueryParam("expand", "resources").
			SetQueryParam("attributes", "id,name,type").
			SetQueryParam("filter[]", "name="+name)
	})
	if err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, fmt.Errorf("%w: provider %q", ErrNotFound, name)
	}
	return list.Resources[0], nil
}

// RefreshProvider queues a provider refresh and returns the task ID.
func (c *Client) RefreshProvider(ctx context.Context, providerID string) (string, error) {
	var result actionResult
	err := c.do(ctx, http.MethodPost, "/api/providers/"+providerID, map[string]string{"action": "refresh"}, &result)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%w: refresh provider %s: %s", ErrActionRejected, providerID, result.Message)
	}
	c.log.V(1).Info("provider refresh queued", "provider", providerID, "task", result.TaskID)
	return result.TaskID, nil
}

// GetTask returns the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// WaitForTask polls a task until it finishes or timeout elapses.
func (c *Client) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	delay := c.taskDelay
	if delay > timeout {
		delay = timeout
	}

	var last *Task
	cond := func(ctx context.Context) (bool, any, error) {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return false, nil, err
		}
		last = task
		return task.State == TaskStateFinished, task.State, nil
	}

	if _, err := c.poller.Poll(ctx, cond, poll.Policy{Timeout: timeout, Delay: delay}); err != nil {
		return last, fmt.Errorf("waiting for task %s: %w", taskID, err)
	}
	if last.Status != TaskStatusOk {
		return last, fmt.Errorf("%w: task %s: %s: %s", ErrTaskFailed, taskID, last.Status, last.Message)
	}
	return last, nil
}

// ProviderRefresher refreshes a provider and waits for the refresh task.
type ProviderRefresher struct {
	client     *Client
	providerID string
	timeout    time.Duration
}

// Refresher returns a refresher for providerID bounded by timeout.
func (c *Client) Refresher(providerID string, timeout time.Duration) *ProviderRefresher {
	return &ProviderRefresher{client: c, providerID: providerID, timeout: timeout}
}

// Refresh implements scenario.Refresher.
func (r *ProviderRefresher) Refresh(ctx context.Context) error {
	taskID, err := r.client.RefreshProvider(ctx, r.providerID)
	if err != nil {
		return err
	}
	if taskID == "" {
		return nil
	}
	_, err = r.client.WaitForTask(ctx, taskID, r.timeout)
	return err
}

// Nudge queues a provider refresh without waiting for it.
func (c *Client) Nudge(providerID string) poll.Nudge {
	return func(ctx context.Context) error {
		_, err := c.RefreshProvider(ctx, providerID)
		return err
	}
}
