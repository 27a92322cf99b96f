package main

import "github.com/bryanchriswhite/capshim/cmd/capshim/commands"

func main() {
	commands.Execute()
}
