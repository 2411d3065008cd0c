package main

import "github.com/ritsu/ipset-fail2ban/internal/cli"

func main() {
	cli.Execute()
}
