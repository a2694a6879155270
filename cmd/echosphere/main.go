// @title EchoSphere API
// @version 1.0
// @description Chatrooms and messages kept in sync between PostgreSQL and a realtime mirror.

// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"fmt"
	"os"

	_ "echosphere/docs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
