package main

import (
	"os"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/cmd/transcribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
