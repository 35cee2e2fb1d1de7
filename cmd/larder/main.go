// Command larder reads and writes entities declared in entities.yaml.
package main

import "github.com/mesh-intelligence/larder/internal/cli"

func main() {
	cli.Execute()
}
