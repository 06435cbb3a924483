// Package main 是 tenderctl 命令行工具的入口。
package main

import "tender-match-go/internal/cli"

func main() {
	cli.Execute()
}
