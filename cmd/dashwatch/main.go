package main

import "github.com/vietddude/dashwatch/internal/cli"

func main() {
	cli.Execute()
}
