package main

import "github.com/RyanBlaney/spectro-stream/cmd"

func main() {
	cmd.Execute()
}
