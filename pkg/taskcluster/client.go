// Copyright (c) 2026 The Fuzzfleet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taskcluster adapts the scheduling services' REST endpoints to
// the interfaces the decision engine consumes. Requests go through the
// worker's authenticating proxy, so the client itself carries no
// credentials.
package taskcluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fuzzfleet/decision/pkg/decision"
)

const defaultTimeout = 30 * time.Second

// Client talks to the queue, hooks and index services under one root
// URL. It implements decision.Queue, decision.Hooks and decision.Index.
type Client struct {
	rootURL string
	http    *http.Client
}

// New returns a client rooted at the given service URL, typically the
// in-task proxy address.
func New(rootURL string) *Client {
	return &Client{
		rootURL: strings.TrimRight(rootURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// CreateTask implements decision.Queue
func (c *Client) CreateTask(taskID string, task *decision.Task) error {
	log.WithField("task", taskID).Debug("creating task")
	return c.call("PUT",
		fmt.Sprintf("/api/queue/v1/task/%s", url.PathEscape(taskID)),
		task, nil)
}

// CancelTask implements decision.Queue
func (c *Client) CancelTask(taskID string) error {
	return c.call("POST",
		fmt.Sprintf("/api/queue/v1/task/%s/cancel", url.PathEscape(taskID)),
		nil, nil)
}

type listTaskGroupResponse struct {
	Tasks []struct {
		Status struct {
			TaskID string `json:"taskId"`
			Runs   []struct {
				State string `json:"state"`
			} `json:"runs"`
		} `json:"status"`
	} `json:"tasks"`
	ContinuationToken string `json:"continuationToken"`
}

// ListTaskGroup implements decision.Queue
func (c *Client) ListTaskGroup(
	groupID string, continuation string) (*decision.TaskGroupPage, error) {
	path := fmt.Sprintf("/api/queue/v1/task-group/%s/list",
		url.PathEscape(groupID))
	if continuation != "" {
		path += "?continuationToken=" + url.QueryEscape(continuation)
	}

	var resp listTaskGroupResponse
	if err := c.call("GET", path, nil, &resp); err != nil {
		if isNotFound(err) {
			return nil, errors.Wrap(decision.ErrNoSuchTaskGroup, groupID)
		}
		return nil, err
	}

	page := &decision.TaskGroupPage{ContinuationToken: resp.ContinuationToken}
	for _, t := range resp.Tasks {
		status := decision.TaskStatus{TaskID: t.Status.TaskID}
		for _, r := range t.Status.Runs {
			status.Runs = append(status.Runs, decision.TaskRun{State: r.State})
		}
		page.Tasks = append(page.Tasks, decision.TaskGroupMember{Status: status})
	}
	return page, nil
}

type lastFiresResponse struct {
	LastFires []struct {
		TaskID         string    `json:"taskId"`
		Result         string    `json:"result"`
		FiredBy        string    `json:"firedBy"`
		TaskCreateTime time.Time `json:"taskCreateTime"`
	} `json:"lastFires"`
}

// ListLastFires implements decision.Hooks
func (c *Client) ListLastFires(
	hookGroupID string, hookID string) ([]decision.HookFire, error) {
	path := fmt.Sprintf("/api/hooks/v1/hooks/%s/%s/last-fires",
		url.PathEscape(hookGroupID), url.PathEscape(hookID))

	var resp lastFiresResponse
	if err := c.call("GET", path, nil, &resp); err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(decision.ErrNoSuchHook,
				"%s/%s", hookGroupID, hookID)
		}
		return nil, err
	}

	fires := make([]decision.HookFire, 0, len(resp.LastFires))
	for _, f := range resp.LastFires {
		fires = append(fires, decision.HookFire{
			TaskID:         f.TaskID,
			Result:         f.Result,
			FiredBy:        f.FiredBy,
			TaskCreateTime: f.TaskCreateTime,
		})
	}
	return fires, nil
}

// FindTask implements decision.Index
func (c *Client) FindTask(namespace string) (string, error) {
	var resp struct {
		TaskID string `json:"taskId"`
	}
	err := c.call("GET",
		fmt.Sprintf("/api/index/v1/task/%s", url.PathEscape(namespace)),
		nil, &resp)
	if err != nil {
		return "", errors.Wrapf(err, "namespace %s", namespace)
	}
	return resp.TaskID, nil
}

// statusError keeps the HTTP status so callers can map not-found
// responses onto the engine's sentinel errors.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (c *Client) call(
	method string, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.rootURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Wrapf(
			&statusError{status: resp.StatusCode, body: string(data)},
			"%s %s", method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decoding %s response", path)
		}
	}
	return nil
}
