package main

import (
	"fmt"
	"os"

	"github.com/carecrypt/carecrypt-server/internal/codec"
)

func main() {
	key, err := codec.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}
