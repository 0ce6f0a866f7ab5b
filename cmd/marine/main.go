// marine is the command line of the marine-anomaly preprocessing pipeline and
// its serving layer.
package main

import (
	"github.com/mohammed1916/marine-anomaly/cmd/marine/commands"
)

func main() {
	commands.Execute()
}
