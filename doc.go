/*
Package samson provides a small HTTP/1.1 server with a fixed pool of workers.

Every accepted connection carries exactly one request. A worker reads and
parses it, dispatches it to the handler registered for the exact path, writes
the response and closes the connection. A route miss is answered with a
configurable not-found page, a malformed request with 400, and a handler that
panics or returns nothing with 500. One failing connection never affects the
others or the worker pool.

Quick Start

Basic usage example:

	package main

	import (
		"log"
		"os"

		"github.com/samsonhttp/samson/app"
		"github.com/samsonhttp/samson/config"
		"github.com/samsonhttp/samson/core/http"
	)

	func main() {
		cfg, err := config.Load(os.Args[1:])
		if err != nil {
			log.Fatal(err)
		}
		application := app.New(cfg)

		server := application.Server()
		server.HandleFunc("/hello", func(req *http.Request) *http.Response {
			return http.Text(http.StatusOK, "Hello, World!")
		})

		if err := application.Run(); err != nil {
			log.Fatal(err)
		}
	}

Modules

  - app: Application lifecycle and signal handling
  - config: Flags, SAMSON_* environment variables and JSON files
  - core: Server, accept loop and per-connection pipeline
  - core/http: Request and response types and their wire codec
  - core/router: Exact-path route table
  - core/middleware: Middleware pipeline
  - core/pools: Worker pool and buffer pool
  - core/sockopt: Listener socket options
  - core/static: Not-found page providers
  - core/observability: Request counters and latency histograms
  - core/stats: Statistics endpoint (protobuf JSON or binary)
*/
package samson
