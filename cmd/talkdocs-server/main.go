package main

import "github.com/hmle/talkdocs/server"

func main() {
	server.Run()
}
