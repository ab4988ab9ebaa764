package generator

import (
	"fmt"
	"strings"

	"github.com/testcraft/testcraft/pkg/models"
)

// TestCaseType enumerates the fixed nine-entry catalog of test-case
// categories. The catalog is static: not persisted, not user-editable.
type TestCaseType int

const (
	Positive TestCaseType = iota
	Negative
	EdgeCase
	Security
	Performance
	UI
	Usability
	API
	Compatibility
)

// Platform is the target surface under test, independent of test-case type.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
	PlatformAPI    Platform = "api"
)

// Label returns the human-readable platform name used in titles.
func (p Platform) Label() string {
	switch p {
	case PlatformWeb:
		return "Web Portal"
	case PlatformMobile:
		return "Mobile App"
	case PlatformAPI:
		return "API"
	}
	return string(p)
}

// typeSpec binds a catalog entry to its step template, criterion-step
// phrasing, expected-result wording and default permission string. All
// per-type dispatch goes through this table.
type typeSpec struct {
	Name               string
	Priority           string // High, Medium or Low
	Category           string // Functional or Non-Functional
	Description        string
	DefaultPermissions string

	baseSteps      func(title string) []models.TestStep
	criterionStep  func(clause string) string
	expectedResult func(title string) string
}

var catalog = [...]typeSpec{
	Positive: {
		Name:               "Positive",
		Priority:           "High",
		Category:           "Functional",
		Description:        "Verifies the happy path with valid inputs",
		DefaultPermissions: "Standard Test User",
		baseSteps:          positiveBaseSteps,
		criterionStep:      validateCriterionStep,
		expectedResult: func(title string) string {
			return fmt.Sprintf("All steps complete successfully and '%s' functions as expected.", title)
		},
	},
	Negative: {
		Name:               "Negative",
		Priority:           "High",
		Category:           "Functional",
		Description:        "Verifies rejection of invalid inputs and flows",
		DefaultPermissions: "Restricted Test User",
		baseSteps:          negativeBaseSteps,
		criterionStep:      validateCriterionStep,
		expectedResult: func(title string) string {
			return fmt.Sprintf("The application handles invalid scenarios for '%s' gracefully and displays appropriate error messages.", title)
		},
	},
	EdgeCase: {
		Name:               "Edge Case",
		Priority:           "Medium",
		Category:           "Functional",
		Description:        "Exercises boundary values and unusual conditions",
		DefaultPermissions: "Standard Test User",
	},
	Security: {
		Name:               "Security",
		Priority:           "High",
		Category:           "Non-Functional",
		Description:        "Probes authentication, authorization and data exposure",
		DefaultPermissions: "Security Administrator",
	},
	Performance: {
		Name:               "Performance",
		Priority:           "Medium",
		Category:           "Non-Functional",
		Description:        "Measures responsiveness under expected load",
		DefaultPermissions: "Performance Analyst",
	},
	UI: {
		Name:               "UI",
		Priority:           "Medium",
		Category:           "Functional",
		Description:        "Verifies layout, controls and visual behaviour",
		DefaultPermissions: "Standard Test User",
	},
	Usability: {
		Name:               "Usability",
		Priority:           "Low",
		Category:           "Non-Functional",
		Description:        "Assesses clarity and ease of use of the flow",
		DefaultPermissions: "Standard Test User",
	},
	API: {
		Name:               "API",
		Priority:           "High",
		Category:           "Functional",
		Description:        "Verifies request/response contracts of the service layer",
		DefaultPermissions: "API Consumer",
	},
	Compatibility: {
		Name:               "Compatibility",
		Priority:           "Low",
		Category:           "Non-Functional",
		Description:        "Verifies behaviour across browsers, devices and versions",
		DefaultPermissions: "Standard Test User",
	},
}

func init() {
	// Entries without a dedicated template fall into the generic bucket.
	for t := range catalog {
		spec := &catalog[t]
		if spec.baseSteps == nil {
			name := spec.Name
			spec.baseSteps = genericBaseSteps(name)
			spec.criterionStep = genericCriterionStep(name)
			spec.expectedResult = genericExpectedResult(name)
		}
	}
}

// allTypes is the catalog order used for deterministic expansion.
var allTypes = []TestCaseType{
	Positive, Negative, EdgeCase, Security, Performance,
	UI, Usability, API, Compatibility,
}

// TypeInfo is the read-only catalog view exposed by the API.
type TypeInfo struct {
	Name        string `json:"name"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Catalog returns the fixed test-case type catalog in expansion order.
func Catalog() []TypeInfo {
	infos := make([]TypeInfo, 0, len(allTypes))
	for _, t := range allTypes {
		spec := catalog[t]
		infos = append(infos, TypeInfo{
			Name:        spec.Name,
			Priority:    spec.Priority,
			Category:    spec.Category,
			Description: spec.Description,
		})
	}
	return infos
}

func positiveBaseSteps(title string) []models.TestStep {
	return []models.TestStep{
		{StepNumber: 1, Action: "Navigate to the application login page", ExpectedResult: "Login page is displayed"},
		{StepNumber: 2, Action: "Enter valid test user credentials", ExpectedResult: "Credentials are accepted without validation errors"},
		{StepNumber: 3, Action: "Click the Login button", ExpectedResult: "User is logged in and lands on the home page"},
		{StepNumber: 4, Action: fmt.Sprintf("Perform the main flow of '%s'", title), ExpectedResult: "The flow completes without errors"},
	}
}

func negativeBaseSteps(title string) []models.TestStep {
	return []models.TestStep{
		{StepNumber: 1, Action: "Navigate to the application login page", ExpectedResult: "Login page is displayed"},
		{StepNumber: 2, Action: "Enter invalid or malformed input data", ExpectedResult: "Input is rejected with a clear validation message"},
		{StepNumber: 3, Action: "Log in with valid credentials", ExpectedResult: "User is logged in and lands on the home page"},
		{StepNumber: 4, Action: fmt.Sprintf("Attempt the flow of '%s' with invalid data at each input", title), ExpectedResult: "Each invalid input is rejected with an error message"},
	}
}

func genericBaseSteps(name string) func(title string) []models.TestStep {
	lower := strings.ToLower(name)
	return func(title string) []models.TestStep {
		return []models.TestStep{
			{StepNumber: 1, Action: "Navigate to the application login page", ExpectedResult: "Login page is displayed"},
			{StepNumber: 2, Action: "Log in with valid test user credentials", ExpectedResult: "User is logged in and lands on the home page"},
			{StepNumber: 3, Action: fmt.Sprintf("Prepare the %s test setup for '%s'", lower, title), ExpectedResult: "Setup is in place"},
			{StepNumber: 4, Action: fmt.Sprintf("Execute the %s checks for '%s'", lower, title), ExpectedResult: fmt.Sprintf("All %s checks pass", lower)},
		}
	}
}

func validateCriterionStep(clause string) string {
	return fmt.Sprintf("Validate acceptance criterion: %s", clause)
}

func genericCriterionStep(name string) func(clause string) string {
	lower := strings.ToLower(name)
	return func(clause string) string {
		return fmt.Sprintf("Test %s aspects of: %s", lower, clause)
	}
}

func genericExpectedResult(name string) func(title string) string {
	return func(title string) string {
		return fmt.Sprintf("%s requirements for '%s' are verified and meet quality standards.", name, title)
	}
}
