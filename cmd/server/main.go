package main

import (
	"os"

	"github.com/rpattn/restfilter/internal/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
