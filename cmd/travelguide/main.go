package main

import (
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/cli"
)

func main() {
	cli.Execute()
}
