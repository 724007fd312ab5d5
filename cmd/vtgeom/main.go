// Command vtgeom compiles vector tiles into GPU geometry and queries the
// result.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&compileCmd{}, "")
	subcommands.Register(&queryCmd{}, "")
	subcommands.Register(&batchCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
