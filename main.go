package main

import "currency-rate-alerts/internal/cli"

func main() {
	cli.Execute()
}
