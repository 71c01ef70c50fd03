package main

import (
	"context"
	"fmt"
	"os"

	provider "github.com/fanapp/fanapp-personalization/internal/pulumi"
	p "github.com/pulumi/pulumi-go-provider"
)

func main() {
	prov, err := provider.NewProvider()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := p.RunProvider(context.Background(), "fanapp-personalization", "0.0.0", prov); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
