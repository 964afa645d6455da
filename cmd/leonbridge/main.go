package main

import "github.com/kamir/leonbridge/cmd/leonbridge/cmd"

func main() {
	cmd.Execute()
}
