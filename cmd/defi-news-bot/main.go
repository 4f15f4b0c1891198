package main

import "github.com/lathiyaMagpiexyz/defi-news-bot/internal/cli"

func main() {
	cli.Execute()
}
