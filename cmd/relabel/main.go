package main

import (
	"os"

	"horse.fit/relabel/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
