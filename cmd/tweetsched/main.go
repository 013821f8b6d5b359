package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := Execute(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tweetsched:", err)
		os.Exit(1)
	}
}
