// Command chatrelay relays chat conversations to a hosted model endpoint
// (Amazon Bedrock, a SageMaker endpoint or an OpenAI-compatible backend).
//
// Subcommands:
//
//	serve    run the HTTP relay, sessions API, web client and MCP tool
//	chat     interactive terminal chat against the configured upstream
//	version  print the build version
//
// Configuration is read from a YAML file (--config, CHATRELAY_CONFIG,
// ./config.yaml, /etc/chatrelay/config.yaml) and CHATRELAY_* environment
// variables. A .env file in the working directory is loaded first.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
