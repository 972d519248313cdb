package main

import (
	"log"

	"github.com/Sksingh0007/TalkDesk/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
