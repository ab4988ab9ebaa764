// Package generator implements the test-case synthesis engine: a pure,
// deterministic expansion of a user story into one structured test case per
// enabled (test type x target platform) combination. It performs no I/O and
// never fails on well-formed input; missing optional configuration degrades
// by omission.
package generator

import (
	"fmt"
	"strings"

	"github.com/testcraft/testcraft/pkg/models"
)

// defaultTestPassword is used when no test-data config supplies one.
const defaultTestPassword = "Test@1234"

// defaultConfiguration is substituted when no AiConfiguration was supplied:
// positive, negative and edge-case types on the web platform only.
// Normalizing here keeps nil checks out of the expansion itself.
func defaultConfiguration() models.AiConfiguration {
	return models.AiConfiguration{
		IncludePositiveTests: true,
		IncludeNegativeTests: true,
		IncludeEdgeCaseTests: true,
		EnableWebPortalTests: true,
	}
}

// Generate expands a user story into one test case per enabled test type and
// selected platform. testData, env and aiCfg are optional; nil means absent.
// Calling twice with identical inputs yields structurally identical output.
func Generate(story models.UserStory, testData *models.TestDataConfig, env *models.EnvironmentConfig, aiCfg *models.AiConfiguration) []models.GeneratedTestCase {
	cfg := defaultConfiguration()
	if aiCfg != nil {
		cfg = *aiCfg
	}

	types := enabledTypes(cfg)
	platforms := selectedPlatforms(cfg)

	cleanDesc := CleanText(story.Description)
	cleanCriteria := CleanText(story.AcceptanceCriteria)
	clauses := SplitCriteria(cleanCriteria)

	cases := make([]models.GeneratedTestCase, 0, len(types)*len(platforms))
	for _, t := range types {
		for _, p := range platforms {
			cases = append(cases, buildCase(story, t, p, cleanDesc, cleanCriteria, clauses, testData, env))
		}
	}
	return cases
}

func enabledTypes(cfg models.AiConfiguration) []TestCaseType {
	flags := map[TestCaseType]bool{
		Positive:      cfg.IncludePositiveTests,
		Negative:      cfg.IncludeNegativeTests,
		EdgeCase:      cfg.IncludeEdgeCaseTests,
		Security:      cfg.IncludeSecurityTests,
		Performance:   cfg.IncludePerformanceTests,
		UI:            cfg.IncludeUITests,
		Usability:     cfg.IncludeUsabilityTests,
		API:           cfg.IncludeAPITests,
		Compatibility: cfg.IncludeCompatibilityTests,
	}
	var types []TestCaseType
	for _, t := range allTypes {
		if flags[t] {
			types = append(types, t)
		}
	}
	return types
}

// selectedPlatforms never returns an empty set: with no platform enabled the
// web portal is assumed.
func selectedPlatforms(cfg models.AiConfiguration) []Platform {
	var platforms []Platform
	if cfg.EnableWebPortalTests {
		platforms = append(platforms, PlatformWeb)
	}
	if cfg.EnableMobileAppTests {
		platforms = append(platforms, PlatformMobile)
	}
	if cfg.EnableAPITests {
		platforms = append(platforms, PlatformAPI)
	}
	if len(platforms) == 0 {
		platforms = []Platform{PlatformWeb}
	}
	return platforms
}

func buildCase(story models.UserStory, t TestCaseType, p Platform, cleanDesc, cleanCriteria string, clauses []string, testData *models.TestDataConfig, env *models.EnvironmentConfig) models.GeneratedTestCase {
	spec := catalog[t]

	steps := spec.baseSteps(story.Title)
	for i, clause := range clauses {
		steps = append(steps, models.TestStep{
			StepNumber:     len(steps) + 1,
			Action:         spec.criterionStep(clause),
			ExpectedResult: fmt.Sprintf("Acceptance criterion AC%d is satisfied", i+1),
		})
	}

	return models.GeneratedTestCase{
		StoryID:             story.ID,
		Project:             story.Project,
		Title:               fmt.Sprintf("%s Test Case (%s): %s", spec.Name, p.Label(), story.Title),
		Objective:           buildObjective(spec, story.Title, cleanDesc, cleanCriteria, clauses),
		Prerequisites:       buildPrerequisites(testData, env),
		TestSteps:           models.RenderSteps(steps),
		TestStepsStructured: steps,
		ExpectedResult:      spec.expectedResult(story.Title),
		TestPassword:        selectPassword(testData),
		RequiredPermissions: selectPermissions(spec, testData),
		Priority:            spec.Priority,
		Category:            spec.Category,
		Platform:            string(p),
		Status:              models.StatusPending,
	}
}

// buildObjective states the type and story title, then the cleaned
// description, then either the enumerated AC clauses or, when the text never
// matched the AC<n>: convention, the raw cleaned criteria block. The
// fallback block intentionally produces no per-step elaboration.
func buildObjective(spec typeSpec, title, cleanDesc, cleanCriteria string, clauses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s testing of user story '%s'.", spec.Name, title)
	if cleanDesc != "" {
		b.WriteString("\n\n")
		b.WriteString(cleanDesc)
	}
	if len(clauses) > 0 {
		b.WriteString("\n\nAcceptance criteria:")
		for i, clause := range clauses {
			fmt.Fprintf(&b, "\nAC%d: %s", i+1, clause)
		}
	} else if cleanCriteria != "" {
		b.WriteString("\n\n")
		b.WriteString(cleanCriteria)
	}
	return b.String()
}

// buildPrerequisites emits the fixed baseline plus labelled blocks for each
// optional config that was actually supplied. Absent configs are omitted
// entirely, never rendered as empty sections.
func buildPrerequisites(testData *models.TestDataConfig, env *models.EnvironmentConfig) string {
	lines := []string{
		"Test environment is configured and reachable.",
		"Tester has access to the application under test.",
	}
	if testData != nil {
		lines = append(lines, "Test data:")
		if testData.Username != "" {
			lines = append(lines, "  Username: "+testData.Username)
		}
		if testData.Password != "" {
			lines = append(lines, "  Password: ********")
		}
		if testData.PortalURL != "" {
			lines = append(lines, "  Portal URL: "+testData.PortalURL)
		}
	}
	if env != nil {
		lines = append(lines, "Environment:")
		if env.OperatingSystem != "" {
			lines = append(lines, "  Operating system: "+env.OperatingSystem)
		}
		if env.Browser != "" {
			lines = append(lines, "  Browser: "+env.Browser)
		}
		if env.Device != "" {
			lines = append(lines, "  Device: "+env.Device)
		}
	}
	return strings.Join(lines, "\n")
}

func selectPassword(testData *models.TestDataConfig) string {
	if testData != nil && testData.Password != "" {
		return testData.Password
	}
	return defaultTestPassword
}

// selectPermissions prefers operator-supplied permissions over the
// type-keyed defaults.
func selectPermissions(spec typeSpec, testData *models.TestDataConfig) string {
	if testData != nil && len(testData.Permissions) > 0 {
		return strings.Join(testData.Permissions, ", ")
	}
	return spec.DefaultPermissions
}
