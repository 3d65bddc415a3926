package theme

import (
	"fmt"
	"io"
)

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	return "" +
		cyan + "   ___   ____ _____ _  _ _____ __  __\n" + reset +
		cyan + "  / _ \\ / ___| ____| \\| |_   _|\\ \\/ /\n" + reset +
		cyan + " | |_| | |  _|  _| | .` | | |   >  <\n" + reset +
		cyan + " |_| |_|\\____|_____|_|\\_| |_|  /_/\\_\\\n" + reset +
		magenta + "   rate-limited X collection and publishing\n" + reset
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, Banner())
}
