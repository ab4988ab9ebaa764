// Package azure implements the tracker.Client interface against the Azure
// DevOps work-item REST API (api-version 7.1).
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/tracker"
)

// Ensure Client implements tracker.Client interface at compile time
var _ tracker.Client = (*Client)(nil)

const (
	apiVersion = "7.1"
	// The batch endpoint caps at 200 IDs per request.
	batchSize = 200
)

// Client is an Azure DevOps REST API client.
type Client struct {
	OrgURL     string // e.g. https://dev.azure.com/myorg
	PAT        string // personal access token
	HTTPClient *http.Client
}

// NewClient creates a new Azure DevOps client.
func NewClient(orgURL, pat string) *Client {
	return &Client{
		OrgURL:     strings.TrimRight(orgURL, "/"),
		PAT:        pat,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends an authenticated request and returns the response. PAT auth uses
// basic auth with an empty username.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth("", c.PAT)
	return c.HTTPClient.Do(req)
}

func readBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(body)
}

// FetchUserStories runs a WIQL query for the project's user stories and
// hydrates them through the work-items batch endpoint.
func (c *Client) FetchUserStories(ctx context.Context, project string) ([]models.UserStory, error) {
	wiql := map[string]string{
		"query": "SELECT [System.Id] FROM WorkItems " +
			"WHERE [System.TeamProject] = @project AND [System.WorkItemType] = 'User Story' " +
			"ORDER BY [System.Id]",
	}
	payload, err := json.Marshal(wiql)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal WIQL query: %w", err)
	}

	wiqlURL := fmt.Sprintf("%s/%s/_apis/wit/wiql?api-version=%s", c.OrgURL, project, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wiqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create WIQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("WIQL request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("WIQL query returned status %d: %s", resp.StatusCode, readBody(resp))
	}

	var wiqlResult struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wiqlResult); err != nil {
		return nil, fmt.Errorf("failed to decode WIQL response: %w", err)
	}
	if len(wiqlResult.WorkItems) == 0 {
		return []models.UserStory{}, nil
	}

	ids := make([]int, 0, len(wiqlResult.WorkItems))
	for _, wi := range wiqlResult.WorkItems {
		ids = append(ids, wi.ID)
	}

	stories := make([]models.UserStory, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.fetchWorkItemBatch(ctx, project, ids[start:end])
		if err != nil {
			return nil, err
		}
		stories = append(stories, batch...)
	}
	return stories, nil
}

func (c *Client) fetchWorkItemBatch(ctx context.Context, project string, ids []int) ([]models.UserStory, error) {
	batchReq := map[string]interface{}{
		"ids": ids,
		"fields": []string{
			"System.Title",
			"System.Description",
			"Microsoft.VSTS.Common.AcceptanceCriteria",
			"System.AssignedTo",
			"Microsoft.VSTS.Common.Priority",
			"System.State",
		},
	}
	payload, err := json.Marshal(batchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	batchURL := fmt.Sprintf("%s/%s/_apis/wit/workitemsbatch?api-version=%s", c.OrgURL, project, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("work-item batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("work-item batch returned status %d: %s", resp.StatusCode, readBody(resp))
	}

	var batchResult struct {
		Value []struct {
			ID     int `json:"id"`
			Fields struct {
				Title              string `json:"System.Title"`
				Description        string `json:"System.Description"`
				AcceptanceCriteria string `json:"Microsoft.VSTS.Common.AcceptanceCriteria"`
				AssignedTo         struct {
					DisplayName string `json:"displayName"`
				} `json:"System.AssignedTo"`
				Priority int    `json:"Microsoft.VSTS.Common.Priority"`
				State    string `json:"System.State"`
			} `json:"fields"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&batchResult); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	stories := make([]models.UserStory, 0, len(batchResult.Value))
	for _, item := range batchResult.Value {
		stories = append(stories, models.UserStory{
			ID:                 strconv.Itoa(item.ID),
			Project:            project,
			Title:              item.Fields.Title,
			Description:        item.Fields.Description,
			AcceptanceCriteria: item.Fields.AcceptanceCriteria,
			AssignedTo:         item.Fields.AssignedTo.DisplayName,
			Priority:           item.Fields.Priority,
			State:              item.Fields.State,
		})
	}
	return stories, nil
}

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// CreateTestCase creates a Test Case work item for an approved case.
func (c *Client) CreateTestCase(ctx context.Context, project string, tc models.GeneratedTestCase) (string, error) {
	description := tc.Objective
	if tc.Prerequisites != "" {
		description += "\n\nPrerequisites:\n" + tc.Prerequisites
	}

	ops := []patchOp{
		{Op: "add", Path: "/fields/System.Title", Value: tc.Title},
		{Op: "add", Path: "/fields/System.Description", Value: description},
		{Op: "add", Path: "/fields/Microsoft.VSTS.TCM.Steps", Value: stepsXML(tc.TestStepsStructured, tc.ExpectedResult)},
		{Op: "add", Path: "/fields/Microsoft.VSTS.Common.Priority", Value: priorityRank(tc.Priority)},
	}
	payload, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("failed to marshal patch document: %w", err)
	}

	createURL := fmt.Sprintf("%s/%s/_apis/wit/workitems/$Test%%20Case?api-version=%s", c.OrgURL, project, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create work-item request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-patch+json")

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("create test case request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create test case returned status %d: %s", resp.StatusCode, readBody(resp))
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	return strconv.Itoa(created.ID), nil
}

// UpdateWorkItemState moves an existing work item to a new state.
func (c *Client) UpdateWorkItemState(ctx context.Context, workItemID, state string) error {
	ops := []patchOp{
		{Op: "add", Path: "/fields/System.State", Value: state},
	}
	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal patch document: %w", err)
	}

	updateURL := fmt.Sprintf("%s/_apis/wit/workitems/%s?api-version=%s", c.OrgURL, workItemID, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, updateURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-patch+json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("update work item request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update work item %s returned status %d: %s", workItemID, resp.StatusCode, readBody(resp))
	}
	return nil
}

// stepsXML renders structured steps in the Microsoft.VSTS.TCM.Steps format.
// The last step carries the case-level expected result.
func stepsXML(steps []models.TestStep, expectedResult string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<steps id="0" last="%d">`, len(steps))
	for i, s := range steps {
		expected := s.ExpectedResult
		if i == len(steps)-1 && expectedResult != "" {
			expected = expectedResult
		}
		fmt.Fprintf(&b, `<step id="%d" type="ActionStep">`, i+1)
		b.WriteString(`<parameterizedString isformatted="true">`)
		xmlEscape(&b, s.Action)
		b.WriteString(`</parameterizedString>`)
		b.WriteString(`<parameterizedString isformatted="true">`)
		xmlEscape(&b, expected)
		b.WriteString(`</parameterizedString>`)
		b.WriteString(`</step>`)
	}
	b.WriteString(`</steps>`)
	return b.String()
}

func xmlEscape(b *strings.Builder, s string) {
	// EscapeText cannot fail on a strings.Builder.
	_ = xml.EscapeText(b, []byte(s))
}

// priorityRank maps the generator's priority labels onto the tracker's
// numeric scale (1 is highest).
func priorityRank(priority string) int {
	switch priority {
	case "High":
		return 1
	case "Medium":
		return 2
	case "Low":
		return 3
	default:
		return 2
	}
}
