package main

import "github.com/bigjimnolan/protectmotion/cmd"

func main() {
	cmd.Execute()
}
