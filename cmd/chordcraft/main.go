// Command chordcraft parses, plays, renders and serves ChordCraft
// compositions.
//
// Usage:
//
//	chordcraft [flags] <command> [args]
//
// Commands:
//
//	parse        check a file and list its diagnostics
//	fmt          print the canonical text for a file
//	play         play a file through the default audio device
//	render       write a file to WAV
//	export-midi  write a file as a standard MIDI file
//	import-midi  convert a MIDI file to text
//	serve        run the HTTP and WebSocket editor backend
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("error:")+" "+err.Error())
		os.Exit(1)
	}
}
