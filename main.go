package main

import "github.com/aarsakian/FSRecover/cmd"

func main() {
	cmd.Execute()
}
