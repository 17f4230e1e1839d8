package main

import "quickcomm/cmd"

func main() {
	cmd.Execute()
}
