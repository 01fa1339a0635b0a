// Package main provides the tileboard CLI.
package main

import (
	"github.com/mesh-learning/tileboard/internal/cli"
)

func main() {
	cli.Execute()
}
