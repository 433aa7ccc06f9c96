// Package main is the single-binary entrypoint for LearnQuest.
// One binary runs the API server and the operator commands.
package main

import "github.com/tutu-network/learnquest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
