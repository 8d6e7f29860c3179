package index

// Posting records one term's occurrences within one record. TitleTF is
// tracked separately so the scorer can weight title hits above body hits.
type Posting struct {
	RecordID string
	TF       int
	TitleTF  int
}

// Stats is a point-in-time summary of the index, exposed for observability.
type Stats struct {
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	AvgDocLength float64 `json:"avg_doc_length"`
}
