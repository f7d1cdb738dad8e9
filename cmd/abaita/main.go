// Command abaita scrapes the badge terminal export into a database and
// prints attendance reports from it.
//
//	abaita [-a address] [-u user] [-p password] [-f filename] [-d database] scrape [-b badge...]
//	abaita [-d database] print [badge] [-a] [-m|-M]
//	abaita [-d database] inspect [table...] [--json]
//	abaita [-d database] migrate
//
// Settings not given on the command line are read from ~/.abaita.rc and
// ABAITA_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deppfellow/abaita/internal/sqlerr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		stop()
		os.Exit(1)
	}
}

// errorLine renders err for the terminal. Database failures lead with a
// readable message and their error code.
func errorLine(err error) string {
	if sqlerr.Convert(err) != nil {
		return fmt.Sprintf("abaita: %s [%s]: %v", sqlerr.UserMessage(err), sqlerr.ErrorCode(err), err)
	}
	return "abaita: " + err.Error()
}
