package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"

	"voiceassist/internal/models"
	"voiceassist/internal/service/dashboard"
	"voiceassist/internal/service/edgecase"
)

const dateLayout = "Jan 2, 2006 15:04"

type reportsCmd struct {
	*app
	limit  int
	asJSON bool
}

func (a *app) setupReports(cmd *kingpin.Application) {
	r := &reportsCmd{app: a}
	dash := cmd.Command("dashboard", "Print recent conversations and appointments.").
		Action(r.dashboard)
	dash.Flag("limit", "Rows per list. Defaults to the configured dashboard_limit.").
		IntVar(&r.limit)
	dash.Flag("json", "Print JSON instead of tables.").
		BoolVar(&r.asJSON)

	cases := cmd.Command("edge-cases", "Print the documented edge cases.").
		Action(r.edgeCases)
	cases.Flag("json", "Print JSON instead of text.").
		BoolVar(&r.asJSON)
}

func (r *reportsCmd) dashboard(*kingpin.ParseContext) error {
	ctx := context.Background()
	db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	limit := r.limit
	if limit <= 0 {
		limit = r.cfg.BasicConfig.DashboardLimit
	}
	ov, err := dashboard.NewService(db, nil, 0).Overview(ctx, limit)
	if err != nil {
		return err
	}
	if r.asJSON {
		return printJSON(os.Stdout, ov)
	}
	return printOverview(os.Stdout, ov)
}

func (r *reportsCmd) edgeCases(*kingpin.ParseContext) error {
	ctx := context.Background()
	db, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	svc := edgecase.NewService(db, nil, 0)
	if _, err := svc.SeedDefaults(ctx); err != nil {
		return err
	}
	cases, err := svc.List(ctx)
	if err != nil {
		return err
	}
	if r.asJSON {
		return printJSON(os.Stdout, cases)
	}
	printEdgeCases(os.Stdout, cases)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOverview(w io.Writer, ov *dashboard.Overview) error {
	fmt.Fprintf(w, "Conversations: %d (%d active)\nAppointments:  %d (%d confirmed)\n\n",
		ov.Summary.TotalConversations, ov.Summary.ActiveConversations,
		ov.Summary.TotalAppointments, ov.Summary.ConfirmedAppointments)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tCUSTOMER\tSTATUS\tSTARTED\tMESSAGES")
	for _, c := range ov.Conversations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			c.ID, customerName(c.Customer), c.Status, c.StartedAt.Local().Format(dateLayout), len(c.VisibleMessages()))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "APPOINTMENT\tCUSTOMER\tSERVICE\tDATE\tSTATUS")
	for _, a := range ov.Appointments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, customerName(a.Customer), a.ServiceType, a.AppointmentDate.Local().Format(dateLayout), a.Status)
	}
	return tw.Flush()
}

func printEdgeCases(w io.Writer, cases []*models.EdgeCase) {
	for i, ec := range cases {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "# %s\n%s\n\nHandling: %s\n", ec.CaseName, ec.Scenario, ec.HandlingStrategy)
		for _, line := range ec.ExampleConversation {
			fmt.Fprintf(w, "  %s: %s\n", line.Role, line.Content)
		}
	}
}

func customerName(c *models.Customer) string {
	if c == nil || c.Name == "" {
		return "Unknown"
	}
	return c.Name
}
