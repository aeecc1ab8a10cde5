package main

import (
	"context"
	"os"

	"cointrade/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background(), os.Args[1:]))
}
