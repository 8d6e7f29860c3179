// Package records implements the record mutation service: validation,
// persistence in PostgreSQL, usage feedback, and Kafka event publication
// that keeps downstream search indexes in step.
package records

// UpsertRequest is the JSON body accepted by the create/update endpoints.
// An empty ID on create lets the database assign one.
type UpsertRequest struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Problem  string   `json:"problem"`
	Solution string   `json:"solution"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// Feedback outcomes reported after an engineer tries a record's solution.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// FeedbackRequest is the JSON body of the usage-feedback endpoint. Every
// feedback call counts as one use; Outcome additionally moves the success
// rate.
type FeedbackRequest struct {
	Outcome string `json:"outcome"`
}
