package main

import (
	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("Application failed: %v", err)
	}
}
