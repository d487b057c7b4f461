package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/urfave/cli/v2"
)

// jsonOutput is true when --json is given or stdout is not a terminal.
func (a *App) jsonOutput(cCtx *cli.Context) bool {
	return cCtx.Bool(flagJSON.Name) || !a.isTTY()
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printUsers prints a single user as an object and several as a list.
func (a *App) printUsers(cCtx *cli.Context, users ...directory.User) error {
	if a.jsonOutput(cCtx) {
		if cCtx.Command.Name == "list" {
			if users == nil {
				users = []directory.User{}
			}
			return a.printJSON(users)
		}
		return a.printJSON(users[0])
	}

	if cCtx.Command.Name != "list" {
		u := users[0]
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Username:\t%s\n", u.Username)
		fmt.Fprintf(w, "UUID:\t%s\n", u.Identity)
		fmt.Fprintf(w, "Email:\t%s\n", u.ContactHandle)
		fmt.Fprintf(w, "External ID:\t%s\n", externalID(u))
		fmt.Fprintf(w, "Created:\t%s\n", u.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Active:\t%t\n", u.Active)
		fmt.Fprintf(w, "Link:\t%s\n", u.Descriptor)
		return w.Flush()
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tUUID\tEXTERNAL ID\tCREATED\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			u.Username, u.Identity, externalID(u), u.CreatedAt.Format(time.RFC3339), u.Active)
	}
	return w.Flush()
}

func externalID(u directory.User) string {
	if u.ExternalID == nil {
		return "-"
	}
	return strconv.FormatInt(*u.ExternalID, 10)
}
