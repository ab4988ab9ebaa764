// Package importer reads and writes test cases as CSV, the interchange
// format for bulk review workflows.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/testcraft/testcraft/pkg/models"
)

// Column headers of the interchange format. Matching is case-insensitive and
// ignores spaces and underscores, so "Story ID" and "story_id" both work.
var exportHeader = []string{
	"story_id", "title", "objective", "prerequisites", "steps",
	"expected_result", "priority", "category", "platform", "required_permissions",
}

// stepSeparator joins the step actions of a case into one CSV cell.
const stepSeparator = " | "

// RowError describes why a single CSV row was rejected. Row errors never
// abort the import; valid rows around them still come through.
type RowError struct {
	Line int    `json:"line"` // 1-based, header included
	Err  string `json:"error"`
}

func rowError(line int, format string, args ...interface{}) RowError {
	return RowError{Line: line, Err: fmt.Sprintf(format, args...)}
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

var validPlatforms = map[string]bool{"web": true, "mobile": true, "api": true}
var validPriorities = map[string]bool{"High": true, "Medium": true, "Low": true}

// Parse reads test cases from CSV. Every case must reference an existing
// story through validStory; importing never creates stories. Parsed cases
// come back in pending status with empty IDs, ready for storage.
func Parse(r io.Reader, project string, validStory func(storyID string) bool) ([]models.GeneratedTestCase, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // rows are validated per column map
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[normalizeHeader(h)] = i
	}
	for _, required := range []string{"storyid", "title"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("CSV header is missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var cases []models.GeneratedTestCase
	var rowErrors []RowError
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, rowError(line, "malformed row: %v", err))
			continue
		}

		storyID := field(record, "storyid")
		title := field(record, "title")
		if storyID == "" || title == "" {
			rowErrors = append(rowErrors, rowError(line, "story_id and title are required"))
			continue
		}
		if !validStory(storyID) {
			rowErrors = append(rowErrors, rowError(line, "unknown story %q", storyID))
			continue
		}

		platform := strings.ToLower(field(record, "platform"))
		if platform == "" {
			platform = "web"
		}
		if !validPlatforms[platform] {
			rowErrors = append(rowErrors, rowError(line, "invalid platform %q", platform))
			continue
		}

		priority := field(record, "priority")
		if priority == "" {
			priority = "Medium"
		}
		if !validPriorities[priority] {
			rowErrors = append(rowErrors, rowError(line, "invalid priority %q", priority))
			continue
		}

		category := field(record, "category")
		if category == "" {
			category = "Functional"
		}

		steps := parseSteps(field(record, "steps"))
		tc := models.GeneratedTestCase{
			StoryID:             storyID,
			Project:             project,
			Title:               title,
			Objective:           field(record, "objective"),
			Prerequisites:       field(record, "prerequisites"),
			TestStepsStructured: steps,
			TestSteps:           models.RenderSteps(steps),
			ExpectedResult:      field(record, "expectedresult"),
			RequiredPermissions: field(record, "requiredpermissions"),
			Priority:            priority,
			Category:            category,
			Platform:            platform,
			Status:              models.StatusPending,
		}
		cases = append(cases, tc)
	}
	return cases, rowErrors, nil
}

// parseSteps splits a "|"-separated steps cell into numbered steps.
func parseSteps(cell string) []models.TestStep {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var steps []models.TestStep
	for _, part := range strings.Split(cell, "|") {
		action := strings.TrimSpace(part)
		if action == "" {
			continue
		}
		steps = append(steps, models.TestStep{
			StepNumber:     len(steps) + 1,
			Action:         action,
			ExpectedResult: "Step completes without errors",
		})
	}
	return steps
}

// Write renders test cases as CSV using the interchange header.
func Write(w io.Writer, cases []models.GeneratedTestCase) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tc := range cases {
		actions := make([]string, len(tc.TestStepsStructured))
		for i, s := range tc.TestStepsStructured {
			actions[i] = s.Action
		}
		record := []string{
			tc.StoryID,
			tc.Title,
			tc.Objective,
			tc.Prerequisites,
			strings.Join(actions, stepSeparator),
			tc.ExpectedResult,
			tc.Priority,
			tc.Category,
			tc.Platform,
			tc.RequiredPermissions,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for case %s: %w", tc.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
