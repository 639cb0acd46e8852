package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hushline/hushline/internal/model"
)

func TestCountersExposed(t *testing.T) {
	m := New()
	m.MessageSubmitted()
	m.MessageSubmitted()
	m.StatusChanged(model.StatusAccepted)
	m.NotificationResult(true)
	m.NotificationResult(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"hushline_messages_submitted_total 2",
		`hushline_message_status_changes_total{status="accepted"} 1`,
		`hushline_notifications_total{result="sent"} 1`,
		`hushline_notifications_total{result="failed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.MessageSubmitted()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "hushline_messages_submitted_total 1") {
		t.Error("counters leaked between instances")
	}
}
