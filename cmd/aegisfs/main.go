// Command aegisfs formats, mounts, and scrubs AegisFS volumes.
package main

import "github.com/reekid420/AegisFS/cmd"

func main() {
	cmd.Execute()
}
