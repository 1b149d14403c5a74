// The main package for the distiller executable.
package main

import "github.com/JakeFAU/lead-signal-distiller/cmd"

func main() {
	cmd.Execute()
}
