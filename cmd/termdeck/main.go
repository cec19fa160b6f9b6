// termdeck attaches the terminal to persistent shells on a termdeck server.
package main

import (
	"os"

	"github.com/GriffinCanCode/termdeck/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
