package matching

import "fmt"

// Kind classifies a mismatch.
type Kind string

// Mismatch kinds.
const (
	KindMethod   Kind = "MethodMismatch"
	KindPath     Kind = "PathMismatch"
	KindStatus   Kind = "StatusMismatch"
	KindQuery    Kind = "QueryMismatch"
	KindHeader   Kind = "HeaderMismatch"
	KindBody     Kind = "BodyMismatch"
	KindBodyType Kind = "BodyTypeMismatch"
	KindMetadata Kind = "MetadataMismatch"
)

// Mismatch is one reported difference between expected and actual content.
type Mismatch struct {
	Kind     Kind   `json:"type"`
	Path     string `json:"path,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"mismatch"`
}

func (m Mismatch) String() string {
	if m.Path != "" {
		return fmt.Sprintf("%s at %s: %s", m.Kind, m.Path, m.Message)
	}
	return fmt.Sprintf("%s: %s", m.Kind, m.Message)
}

func statusMismatch(expected, actual int) Mismatch {
	return Mismatch{
		Kind:     KindStatus,
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", actual),
		Message:  fmt.Sprintf("expected status %d but was %d", expected, actual),
	}
}

func headerMismatch(name, expected, actual string) Mismatch {
	return Mismatch{
		Kind:     KindHeader,
		Path:     name,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("expected header %q with value %q but was %q", name, expected, actual),
	}
}

func missingHeaderMismatch(name, expected string) Mismatch {
	return Mismatch{
		Kind:     KindHeader,
		Path:     name,
		Expected: expected,
		Actual:   "",
		Message:  fmt.Sprintf("expected header %q but it was missing", name),
	}
}

func bodyMismatch(path, expected, actual, msg string) Mismatch {
	return Mismatch{
		Kind:     KindBody,
		Path:     path,
		Expected: expected,
		Actual:   actual,
		Message:  msg,
	}
}
