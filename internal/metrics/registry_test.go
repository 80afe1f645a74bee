package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestInitDefaultIsShared(t *testing.T) {
	m := InitDefault()
	if m == nil {
		t.Fatal("InitDefault returned nil")
	}
	if again := InitDefault(); again != m {
		t.Error("InitDefault should return the same instance")
	}
}

func TestNewRegistryIsIsolated(t *testing.T) {
	reg1, m1 := NewRegistry()
	reg2, _ := NewRegistry()

	m1.ObserveNavigation("forward", true)

	if got := familyNamed(t, reg1.Gather, "activityflow_navigations_total"); got == nil {
		t.Fatal("navigation counter missing from its own registry")
	}
	if got := familyNamed(t, reg2.Gather, "activityflow_navigations_total"); got != nil && len(got.GetMetric()) > 0 {
		t.Error("observation leaked into a second registry")
	}
}

func TestHandlerFor(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"text exposition", "", "activityflow_sessions_total"},
		{"openmetrics", "application/openmetrics-text; version=1.0.0", "# EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, m := NewRegistry()
			m.ObserveSession("created")

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			w := httptest.NewRecorder()
			HandlerFor(reg).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q:\n%s", tt.want, w.Body.String())
			}
		})
	}
}

func TestDefaultHandler(t *testing.T) {
	InitDefault().ObserveActivityLoad(nil)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "activityflow_activity_loads_total") {
		t.Error("default handler does not expose the default collectors")
	}
}

func familyNamed(t *testing.T, gather func() ([]*dto.MetricFamily, error), name string) *dto.MetricFamily {
	t.Helper()
	families, err := gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
