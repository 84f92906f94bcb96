package main

import (
	"log"
	"os"

	"github.com/formvault/formvault/internal/keytool"
)

func main() {

	app := keytool.NewApp(os.Stdout)

	if err := app.Run(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
