package models

// IssueType classifies a single review issue. The set is closed: anything the
// model returns outside it is rewritten to IssueTypeCodeSmell.
type IssueType string

const (
	IssueTypeBugRisk         IssueType = "Bug Risk"
	IssueTypeCodeSmell       IssueType = "Code Smell"
	IssueTypeStyle           IssueType = "Style"
	IssueTypeSecurity        IssueType = "Security"
	IssueTypePerformance     IssueType = "Performance"
	IssueTypeBestPractice    IssueType = "Best Practice"
	IssueTypeMaintainability IssueType = "Maintainability"
	IssueTypeReadability     IssueType = "Readability"
	IssueTypeComplexity      IssueType = "Complexity"
	IssueTypeDuplication     IssueType = "Duplication"
	IssueTypeErrorHandling   IssueType = "Error Handling"
	IssueTypeDocumentation   IssueType = "Documentation"
	IssueTypeTesting         IssueType = "Testing"
	IssueTypeNaming          IssueType = "Naming"
	IssueTypeDeadCode        IssueType = "Dead Code"
	IssueTypeTypeSafety      IssueType = "Type Safety"
	IssueTypeConcurrency     IssueType = "Concurrency"
	IssueTypeAccessibility   IssueType = "Accessibility"
	IssueTypeConfiguration   IssueType = "Configuration"
)

// IssueTypes lists the vocabulary in prompt order.
var IssueTypes = []IssueType{
	IssueTypeBugRisk,
	IssueTypeCodeSmell,
	IssueTypeStyle,
	IssueTypeSecurity,
	IssueTypePerformance,
	IssueTypeBestPractice,
	IssueTypeMaintainability,
	IssueTypeReadability,
	IssueTypeComplexity,
	IssueTypeDuplication,
	IssueTypeErrorHandling,
	IssueTypeDocumentation,
	IssueTypeTesting,
	IssueTypeNaming,
	IssueTypeDeadCode,
	IssueTypeTypeSafety,
	IssueTypeConcurrency,
	IssueTypeAccessibility,
	IssueTypeConfiguration,
}

var validIssueTypes = func() map[IssueType]bool {
	m := make(map[IssueType]bool, len(IssueTypes))
	for _, t := range IssueTypes {
		m[t] = true
	}
	return m
}()

func (t IssueType) Valid() bool {
	return validIssueTypes[t]
}

// Severity indicates how urgently an issue should be addressed.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityMajor    Severity = "Major"
	SeverityCritical Severity = "Critical"
)

// Severities lists the severity vocabulary from least to most severe.
var Severities = []Severity{SeverityMinor, SeverityMajor, SeverityCritical}

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// Rank returns a sort key (higher = more severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}
