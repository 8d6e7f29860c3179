package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/search", "/api/v1/search"},
		{"/api/v1/records", "/api/v1/records"},
		{"/api/v1/records/", "/api/v1/records/"},
		{"/api/v1/records/kb-42", "/api/v1/records/{id}"},
		{"/api/v1/records/kb-42/feedback", "/api/v1/records/{id}/feedback"},
		{"/health/ready", "/health/ready"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
