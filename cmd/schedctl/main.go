// Command schedctl manages posts, channels and owners in the schedbot store.
package main

import "schedbot/cmd/schedctl/commands"

func main() {
	commands.Execute()
}
