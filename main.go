package main

import (
	"log"

	"github.com/mfvargas/fieldops/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
