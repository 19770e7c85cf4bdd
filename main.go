package main

import (
	"github.com/kartoza/aviation-risk/internal/cli"
	"github.com/kartoza/aviation-risk/internal/window"
)

var version = "dev"

func main() {
	cli.Execute(version, window.Open)
}
