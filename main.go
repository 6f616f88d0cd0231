package main

import (
	"danmaku-overlay/cmd"
)

func main() {
	cmd.Execute()
}
