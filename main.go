package main

import "github.com/KaramelBytes/exodetect-cli/cmd"

func main() {
	cmd.Execute()
}
