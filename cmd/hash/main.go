// Package main prints the bcrypt hash of a password at the cost the identity provider
// uses. It is meant for seeding the identities table in a local database:
//
//	go run ./cmd/hash 'S3cret!pass'
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/xplorixa/portal/internal/identity"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), identity.PasswordCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
