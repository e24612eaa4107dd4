package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/balaji-balu/etcdcheck/cmd/etcdcheck/cli/cmd"
)

func init() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "ignoring .env:", err)
	}
}

func main() {
	os.Exit(cmd.Execute())
}
