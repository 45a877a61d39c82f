package main

import "github.com/DoraCN/usb-resolver/cmd"

func main() {
	cmd.Execute()
}
