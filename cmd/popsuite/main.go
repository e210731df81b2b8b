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
			fmt.Fprintln(os.Stderr)
			popsuitecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
