// Command gastos-cli runs ledger chores against the configured backend.
package main

import (
	"github.com/alecthomas/kong"
)

// cli commands / args available
var cli struct {
	Globals globals `embed`

	Import importCmd `cmd help:"Import a CSV file straight into the ledger."`
	Export exportCmd `cmd help:"Write one month as CSV."`
	Report reportCmd `cmd help:"Print the monthly report."`
	Settle settleCmd `cmd help:"Print who owes whom for shared expenses."`
	Index  indexCmd  `cmd help:"Push one month into a search sink."`
	User   userCmd   `cmd help:"Manage accounts."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("gastos-cli"),
		kong.Description("Household ledger maintenance."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
