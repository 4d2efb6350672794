// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"io"
)

const Version = "0.4.0"

// Print writes the banner and version to w.
func Print(w io.Writer) {
	banner := `
    ____           ____
   / __ \___  ____/ / (_)___  ___
  / /_/ / _ \/ __  / / / __ \/ _ \
 / _, _/  __/ /_/ / / / / / /  __/
/_/ |_|\___/\__,_/_/_/_/ /_/\___/
            v%s - Queue Engine
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
