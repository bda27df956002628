package main

import (
	"github.com/rankport/rankport"
)

func main() {
	rankport.Run()
}
