package main

import "github.com/jsvoboda/faceguard/cmd"

func main() {
	cmd.Execute()
}
