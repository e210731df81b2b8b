package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/popsuite/internal/popsuitecli"
)

func main() {
	if err := popsuitecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, popsuitecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "usage: popsuite setup [--api-base-url URL] [--addr :3000] [--force]")
			fmt.Fprintln(os.Stderr, "       popsuite run client")
			fmt.Fprintln(os.Stderr, "       popsuite export <type> [--category C] [--model M] [--out file.xlsx]")
			fmt.Fprintln(os.Stderr, "       popsuite import <type> <file>")
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
