package main

import (
	"log"

	"github.com/eatclean/mediagw/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
