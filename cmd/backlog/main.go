// Command backlog plans sprints over a story backlog.
package main

import "github.com/mesh-intelligence/backlog/internal/cli"

func main() {
	cli.Execute()
}
