package main

import "github.com/goliatone/go-auth-client/cmd/authclient/cmd"

func main() {
	cmd.Execute()
}
