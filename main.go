package main

import (
	"log"

	"fanzone-tickets/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
