package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gtank/cryptopasta"

	"gastos/internal/auth"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/sink"
)

type importCmd struct {
	File   string `arg:"" type:"existingfile" help:"CSV file to import."`
	User   string `help:"Owner of rows without a user column."`
	DryRun bool   `name:"dry-run" help:"Parse and print the preview without writing."`
}

func (c *importCmd) Run(g *globals) error {
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	preview, err := s.ledger.StartImport(s.ctx, c.User, f)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rows (%s), total %s, %d rejected\n",
		c.File, preview.Count, preview.Variant, preview.Total.Display(), preview.Rejected)
	for _, e := range preview.Errors {
		fmt.Println("  rejected:", e)
	}
	if c.DryRun {
		s.ledger.CancelImport(c.User, preview.ID)
		return nil
	}

	saved, err := s.ledger.CommitImport(s.ctx, c.User, preview.ID)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d transactions\n", len(saved))
	return nil
}

type exportCmd struct {
	Month string `help:"Month as YYYY-MM (default: current)."`
	User  string `default:"all" help:"User id or 'all'."`
	Out   string `short:"o" default:"-" help:"Output file, '-' for stdout."`
}

func (c *exportCmd) Run(g *globals) error {
	p, err := period(c.Month)
	if err != nil {
		return err
	}
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := output(c.Out)
	if err != nil {
		return err
	}
	if err := s.ledger.Export(s.ctx, w, c.User, p); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

type reportCmd struct {
	Month  string `help:"Month as YYYY-MM (default: current)."`
	User   string `default:"all" help:"User id or 'all'."`
	View   string `default:"expense" enum:"expense,income,all" help:"Which records to aggregate."`
	Format string `default:"text" enum:"text,json" help:"Output format."`
}

func (c *reportCmd) Run(g *globals) error {
	p, err := period(c.Month)
	if err != nil {
		return err
	}
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	full, err := s.ledger.Report(s.ctx, c.User, p)
	if err != nil {
		return err
	}
	r := full
	switch c.View {
	case "expense":
		r = full.ExpenseView()
	case "income":
		r = full.IncomeView()
	}

	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return printReport(r, full)
}

func printReport(r, full report.Report) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t\n", r.Period.Label(), r.UserID)
	fmt.Fprintln(tw, "\t\t")
	for _, cs := range r.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", cs.Category, cs.Total.Display(), cs.Count)
	}
	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintf(tw, "total\t%s\t%d\t\n", r.TotalAmount.Display(), r.Count())
	fmt.Fprintf(tw, "average\t%s\t\n", r.Average.Display())
	fmt.Fprintf(tw, "balance\t%s\t\n", full.Balance().Display())
	return tw.Flush()
}

type settleCmd struct {
	Month string `help:"Month as YYYY-MM (default: current)."`
}

func (c *settleCmd) Run(g *globals) error {
	p, err := period(c.Month)
	if err != nil {
		return err
	}
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.ledger.Settlement(s.ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("%s: shared %s, half %s\n", p.Label(), sum.Total.Display(), sum.Half.Display())
	for _, ct := range sum.Contributions {
		fmt.Printf("  %s paid %s\n", ct.UserID, ct.Total.Display())
	}
	switch {
	case !sum.Settleable:
		fmt.Println("not settleable: shared expenses need exactly two payers")
	case len(sum.Debts) == 0:
		fmt.Println("even")
	}
	for _, d := range sum.Debts {
		fmt.Printf("%s owes %s %s\n", d.From, d.To, d.Amount.Display())
	}
	return nil
}

type indexCmd struct {
	Month string `help:"Month as YYYY-MM (default: current)."`
	User  string `default:"all" help:"User id or 'all'."`
	Out   string `default:"jsonfile:out.json" help:"Where to write [jsonfile:/path/file.json es8:http://myelasticsearch:9200]"`
	Index string `env:"ELASTICSEARCH_INDEX" default:"gastos-transactions" help:"Index name for es8 targets."`
}

func (c *indexCmd) Run(g *globals) error {
	p, err := period(c.Month)
	if err != nil {
		return err
	}
	target, err := sink.Open(c.Out, c.Index)
	if err != nil {
		return err
	}
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	txns, err := s.ledger.Transactions(s.ctx, ledger.Filter{UserID: c.User, Period: p})
	if err != nil {
		return err
	}
	if err := target.Upsert(s.ctx, txns); err != nil {
		return fmt.Errorf("%s: %w", target.Name(), err)
	}
	s.logger.Info("Indexed month",
		log.FieldPeriod, p.String(),
		log.FieldCount, len(txns),
		"sink", target.Name())
	fmt.Printf("indexed %d transactions into %s\n", len(txns), target.Name())
	return nil
}

type userCmd struct {
	Add userAddCmd `cmd help:"Create an account."`
}

type userAddCmd struct {
	Email    string `required help:"Sign-in email."`
	Name     string `required help:"Display name; the user id is derived from it."`
	Password string `required env:"GASTOS_PASSWORD" help:"Initial password (or GASTOS_PASSWORD)."`
}

func (c *userAddCmd) Run(g *globals) error {
	s, err := g.open()
	if err != nil {
		return err
	}
	defer s.Close()

	// Sessions are never issued here, so throwaway keys are enough.
	gw, err := auth.NewGateway(s.backend.Users, auth.Config{
		SessionKey:        ephemeralKey(),
		SessionSigningKey: ephemeralKey(),
	})
	if err != nil {
		return err
	}
	defer gw.Close()

	u, err := gw.SignUp(s.ctx, c.Email, c.Password, c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("created %s <%s>\n", u.ID, u.Email)
	return nil
}

func ephemeralKey() string {
	return hex.EncodeToString(cryptopasta.NewEncryptionKey()[:])
}
