// The main package for the newscrawler executable.
package main

import (
	"github.com/mediapulse/newscrawler/cmd"
)

func main() {
	cmd.Execute()
}
