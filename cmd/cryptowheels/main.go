package main

import (
	"context"

	"github.com/cryptowheels/marketplace/cmd/cryptowheels/cmd"
)

func main() {
	cmd.New().Execute(context.Background())
}
