// entry point to app
package main

import "github.com/ds124wfegd/studio-booking/internal/cli"

func main() {
	cli.Execute()
}
