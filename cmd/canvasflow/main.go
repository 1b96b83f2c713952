// Command canvasflow manages stored workflow canvases: import, order,
// export, simulate and draw them, follow a runtime execution, or serve
// them to agents over MCP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg := loadConfig()
	a := &app{cfg: cfg, logger: newLogger(cfg, stderr), stdout: stdout, stderr: stderr}

	var err error
	switch args[0] {
	case "init":
		err = runInit(args[1:], stdout, stderr)
	case "serve":
		err = a.serve(ctx, args[1:])
	case "import":
		err = a.importCanvas(ctx, args[1:])
	case "list":
		err = a.list(ctx, args[1:])
	case "order":
		err = a.order(ctx, args[1:])
	case "export":
		err = a.export(ctx, args[1:])
	case "simulate":
		err = a.simulate(ctx, args[1:])
	case "diagram":
		err = a.diagram(ctx, args[1:])
	case "watch":
		err = a.watch(ctx, args[1:])
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: canvasflow <command> [flags] [args]

Commands:
  init                                  write ~/.canvasflow/settings.json and create the database
  serve                                 serve stored workflows as MCP tools over stdio
  import [-id ID] [-name NAME] FILE     store a {nodes, edges} snapshot ("-" reads stdin)
  list [-name TEXT] [-limit N]          list stored workflows
  order [-mode export|simulation] ID    print the execution order
  export [-strict] [-o FILE] ID         write the runtime definition document
  simulate [-stop-on-error] ID          dry-run every node and store the results
  diagram [-format F] [-o FILE] ID      draw a workflow (ascii, mermaid, svg, png)
  watch [-runtime-url URL] ID EXEC_ID   follow a runtime execution until it finishes
  version                               print the version
`)
}
