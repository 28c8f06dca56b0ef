package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/parrotgw/parrot/conf"
	"github.com/parrotgw/parrot/internal/build"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/metrics"
	"github.com/parrotgw/parrot/internal/server"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			fmt.Println(build.Version)
			return
		case "build-info":
			fmt.Println(build.GetBuildInfo())
			return
		case "help", "--help", "-h":
			showHelp()
			return
		}
	}

	startServer()
}

func startServer() {
	server.Run(
		conf.Module,
		fx.Provide(metrics.NewProvider),
		fx.Invoke(func(lc fx.Lifecycle, srv *server.Server, provider *sdk.MeterProvider) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					if provider != nil {
						return provider.Shutdown(ctx)
					}

					return nil
				},
			})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						err := srv.Run()
						if err != nil {
							log.Error(context.Background(), "server run error:", log.Cause(err))
							os.Exit(1)
						}
					}()

					return nil
				},
				OnStop: func(ctx context.Context) error {
					err := srv.Shutdown(ctx)
					if err != nil {
						log.Error(context.Background(), "server shutdown error:", log.Cause(err))
					}

					return nil
				},
			})
		}),
	)
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: parrot config <preview|validate>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	default:
		fmt.Println("Usage: parrot config <preview|validate>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}

func configValidate() {
	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	problems := conf.Validate(config)
	if len(problems) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, problem := range problems {
		fmt.Printf("  - %s\n", problem)
	}

	os.Exit(1)
}

func showHelp() {
	fmt.Println("Parrot OpenAI-compatible caching gateway")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  parrot                     Start the gateway (default)")
	fmt.Println("  parrot config preview      Preview configuration")
	fmt.Println("  parrot config validate     Validate configuration")
	fmt.Println("  parrot version             Show version")
	fmt.Println("  parrot build-info          Show build information")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -f, --format FORMAT        Output format for config preview (yml, json)")
}
