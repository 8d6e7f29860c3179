package records

import (
	"fmt"
	"strings"
)

const (
	maxIDLength       = 64
	maxTitleLength    = 512
	maxTextLength     = 65536
	maxCategoryLength = 64
	maxTagLength      = 64
	maxTags           = 16
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateUpsert checks an upsert request's field constraints. Content is
// not sanitised here: the search side treats all record text as untrusted
// input already.
func ValidateUpsert(req *UpsertRequest) error {
	errs := make(map[string]string)

	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if strings.ContainsAny(req.ID, " \t\n") {
		errs["id"] = "id must not contain whitespace"
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}

	if strings.TrimSpace(req.Problem) == "" {
		errs["problem"] = "problem description is required"
	} else if len(req.Problem) > maxTextLength {
		errs["problem"] = fmt.Sprintf("problem must be at most %d characters", maxTextLength)
	}

	if strings.TrimSpace(req.Solution) == "" {
		errs["solution"] = "solution is required"
	} else if len(req.Solution) > maxTextLength {
		errs["solution"] = fmt.Sprintf("solution must be at most %d characters", maxTextLength)
	}

	if len(req.Category) > maxCategoryLength {
		errs["category"] = fmt.Sprintf("category must be at most %d characters", maxCategoryLength)
	}

	if len(req.Tags) > maxTags {
		errs["tags"] = fmt.Sprintf("at most %d tags allowed", maxTags)
	} else {
		for _, tag := range req.Tags {
			if strings.TrimSpace(tag) == "" || len(tag) > maxTagLength {
				errs["tags"] = fmt.Sprintf("tags must be non-empty and at most %d characters", maxTagLength)
				break
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateFeedback checks a feedback request.
func ValidateFeedback(req *FeedbackRequest) error {
	if req.Outcome != OutcomeSuccess && req.Outcome != OutcomeFailure {
		return &ValidationError{Fields: map[string]string{
			"outcome": fmt.Sprintf("outcome must be %q or %q", OutcomeSuccess, OutcomeFailure),
		}}
	}
	return nil
}
