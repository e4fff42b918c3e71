package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/castillorm/graphctl/pkg/sdk"
)

// printUser writes "- <displayName> | <userPrincipalName> | id=<id>".
func printUser(w io.Writer, user sdk.User) {
	fmt.Fprintf(w, "- %s | %s | id=%s\n", user.DisplayName, user.UserPrincipalName, user.ID)
}

func printUsers(w io.Writer, format string, users []sdk.User) error {
	if format == outputJSON {
		return writeJSON(w, users)
	}
	for _, user := range users {
		printUser(w, user)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
