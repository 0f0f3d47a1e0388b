// Command xpra-session is the CLI surface for one session core process
// (§6): launching a session, attaching/detaching clients, querying
// running sessions, and sending it runtime control commands.
package main

func main() {
	Execute()
}
