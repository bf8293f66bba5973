package main

import "github.com/Skryldev/user-service/cmd"

func main() {
	cmd.Execute()
}
