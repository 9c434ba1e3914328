package main

import "chat-realtime/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}
