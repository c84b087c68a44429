package gitscrum

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// StatusComplete is the workflow title GitScrum reports for finished tasks.
// It is the only status label this service interprets.
const StatusComplete = "Complete"

// Gateway creates and queries tasks in the external tracker.
type Gateway interface {
	CreateTask(ctx context.Context, title, description string) (string, error)
	TaskStatus(ctx context.Context, externalRef string) (string, error)
}

// Client talks to the GitScrum REST API. Authentication rides as query
// parameters on every request.
type Client struct {
	http      *resty.Client
	apiKey    string
	projectID string
}

// NewClient builds a client from config.
func NewClient(cfg config.GitScrumConfig) *Client {
	return &Client{
		http:      resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout()),
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
	}
}

type taskEnvelope struct {
	Data struct {
		UUID     string `json:"uuid"`
		Workflow struct {
			Title string `json:"title"`
		} `json:"workflow"`
	} `json:"data"`
}

// CreateTask opens a task and returns its uuid.
func (c *Client) CreateTask(ctx context.Context, title, description string) (string, error) {
	var env taskEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.authParams()).
		SetBody(map[string]any{
			"title":       title,
			"description": description,
		}).
		SetResult(&env).
		Post("/tasks")
	if err != nil {
		return "", util.NewAdapterError("create gitscrum task", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", util.NewAdapterError(
			fmt.Sprintf("create gitscrum task: unexpected status %d", resp.StatusCode()), nil)
	}
	if env.Data.UUID == "" {
		return "", util.NewAdapterError("create gitscrum task: response missing uuid", nil)
	}
	return env.Data.UUID, nil
}

// TaskStatus returns the task's current workflow title.
func (c *Client) TaskStatus(ctx context.Context, externalRef string) (string, error) {
	var env taskEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.authParams()).
		SetResult(&env).
		Get("/tasks/" + externalRef)
	if err != nil {
		return "", util.NewAdapterError("fetch gitscrum task", err)
	}
	if resp.IsError() {
		return "", util.NewAdapterError(
			fmt.Sprintf("fetch gitscrum task: unexpected status %d", resp.StatusCode()), nil)
	}
	if env.Data.Workflow.Title == "" {
		return "", util.NewAdapterError("fetch gitscrum task: response missing workflow title", nil)
	}
	return env.Data.Workflow.Title, nil
}

func (c *Client) authParams() map[string]string {
	return map[string]string{
		"project_key": c.projectID,
		"api_id":      c.apiKey,
	}
}
