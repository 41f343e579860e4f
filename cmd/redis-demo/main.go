// Package main provides the entry point for redis-demo.
//
// redis-demo walks a Redis server through strings, hashes, lists, sets,
// sorted sets, transactions, HyperLogLog and bitmaps, either once from the
// command line or on demand behind an HTTP API.
package main

import (
	"os"

	"github.com/leafsii/redis-demo/internal/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
