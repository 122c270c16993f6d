package main

import "github.com/yungbote/compoundlab-backend/internal/cli"

func main() {
	cli.Execute()
}
