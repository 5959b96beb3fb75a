package main

import "dupsieve/cmd"

func main() {
	cmd.Execute()
}
