package main

import (
	"log"

	"github.com/MrSnakeDoc/wagate/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ wagate failed to start: %v", err)
	}
}
