// Command gentoken prints an identity token for local testing. The token is
// signed with DEV_JWT_SECRET (or the development default), so it is only
// accepted by a server running with the same JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Togather-Foundation/rsvp/internal/testauth"
)

func main() {
	subject := flag.String("sub", "dev-user", "identity subject (becomes the user id)")
	email := flag.String("email", "dev@example.com", "email claim")
	name := flag.String("name", "", "display name claim")
	flag.Parse()

	token, err := testauth.DevToken(*subject, *email, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\nTest with:\ncurl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/users/profile\n", token)
}
