package health

import (
	"context"
	"testing"

	"github.com/getkayan/kidentity/kgorm"
	"github.com/getkayan/kidentity/mapping"
)

type staticChecker struct {
	name   string
	status Status
}

func (s staticChecker) Name() string { return s.name }
func (s staticChecker) Check(context.Context) *Check {
	return &Check{Name: s.name, Status: s.status}
}

type nilChecker struct{}

func (nilChecker) Name() string                 { return "broken" }
func (nilChecker) Check(context.Context) *Check { return nil }

func TestManager_Fold(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"healthy", []Checker{staticChecker{"a", StatusHealthy}}, StatusHealthy},
		{"degraded", []Checker{staticChecker{"a", StatusHealthy}, staticChecker{"b", StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", []Checker{staticChecker{"a", StatusUnhealthy}, staticChecker{"b", StatusDegraded}}, StatusUnhealthy},
		{"nil result", []Checker{nilChecker{}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for _, c := range tt.checkers {
				m.Register(c)
			}
			report := m.Check(context.Background())
			if report.Status != tt.want {
				t.Fatalf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.checkers) {
				t.Fatalf("expected %d checks, got %d", len(tt.checkers), len(report.Checks))
			}
		})
	}
}

func TestStorageCheckers(t *testing.T) {
	desc, err := mapping.New[string](mapping.KeyHexComb)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	sess, err := kgorm.OpenSession("sqlite", ":memory:", desc, kgorm.Options{SkipMigrate: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	m := NewManager("test")
	m.Register(NewDatabaseChecker(sess.DB()))
	m.Register(NewSchemaChecker(sess.DB(), desc.Tables()))

	report := m.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("expected degraded before migration, got %s (%+v)", report.Status, report.Checks)
	}

	if err := desc.Migrate(sess.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	report = m.Check(context.Background())
	if report.Status != StatusHealthy {
		t.Fatalf("expected healthy after migration, got %s (%+v)", report.Status, report.Checks)
	}
}
