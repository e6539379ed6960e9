package metrics

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                          "/",
		"/health":                    "/health",
		"/accounts":                  "/accounts",
		"/accounts/ai4aabc":          "/accounts/:id",
		"/accounts/ai4aabc/balance":  "/accounts/:id/balance",
		"/accounts/leaderboard":      "/accounts/:id",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordersDoNotPanic(t *testing.T) {
	SetDayPhase(1)
	RecordSubmission("accepted")
	RecordCanaryOutcome("passed")
	RecordFinalization("success", 1000)
}
