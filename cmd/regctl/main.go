// Command regctl is a command-line client for the semantic service registry.
//
// Usage:
//
//	regctl login alice --password secret      # prints a token
//	export REGCTL_TOKEN=<token>
//	regctl rfp add urn:rfp:orders --category urn:cat:orders --input urn:in:a
//	regctl rfp query urn:rfp:orders
//	regctl search invoice
//	regctl logout
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
