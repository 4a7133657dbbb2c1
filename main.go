package main

import "github.com/kamusis/greyhound/cmd"

func main() {
	cmd.Execute()
}
