package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/getkayan/kidentity/health"
)

func (a *app[K]) healthCommand(ctx context.Context, tables []string) error {
	m := health.NewManager(Version, health.WithTimeout(5*time.Second))
	m.Register(health.NewDatabaseChecker(a.session.DB()))
	m.Register(health.NewSchemaChecker(a.session.DB(), tables))

	report := m.Check(ctx)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tLATENCY\tMESSAGE")
	for _, c := range report.Checks {
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", c.Name, c.Status, c.LatencyMs, c.Message)
	}
	w.Flush()
	fmt.Fprintf(a.out, "\nStatus: %s\n", report.Status)

	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("storage is unhealthy")
	}
	return nil
}
