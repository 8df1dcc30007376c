package main

import "github.com/KaramelBytes/lastmile-cli/cmd"

func main() {
	cmd.Execute()
}
