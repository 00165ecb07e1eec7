package main

import (
	"qpoint/cmd"
)

func main() {
	cmd.Execute()
}
