package main

import (
	"os"

	"github.com/monolith-auth/monolith-auth/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
