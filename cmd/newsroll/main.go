package main

import (
	"newsroll/cmd/handlers"
	"newsroll/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
