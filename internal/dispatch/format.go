package dispatch

import (
	"fmt"
	"strings"

	"herald/internal/gateway"
	"herald/internal/store"
)

// raidCallout renders the start-time call-out for a raid. Host first, then
// every signup, so the mention allow-list matches the rendered text.
func raidCallout(r *store.Raid) (string, gateway.Mentions) {
	users := make([]string, 0, len(r.Users)+1)
	users = append(users, r.HostUserID)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** is starting <t:%d:R>!\n", r.Title, r.When)
	fmt.Fprintf(&b, "Host: <@%s> (%s, %s)", r.HostUserID, r.HostName, r.HostUID)
	if len(r.Users) > 0 {
		b.WriteString("\nSignups:")
		for _, u := range r.Users {
			fmt.Fprintf(&b, " <@%s>", u.UserID)
			users = append(users, u.UserID)
		}
	}
	return b.String(), gateway.Mentions{Users: users}
}
