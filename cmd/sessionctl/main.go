// sessionctl inspects and maintains session records from the command line.
package main

import "kriptoproyek/backend/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
