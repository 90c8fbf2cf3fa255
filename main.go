package main

import "github.com/andrewmarklloyd/sentry-notifier/cmd"

func main() {
	cmd.Execute()
}
