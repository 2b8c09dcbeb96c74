package main

import "github.com/jmehdipour/router-sms-gateway/cmd"

func main() {
	cmd.Execute()
}
