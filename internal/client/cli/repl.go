package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	VaultStatus(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	VaultUpload(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Versions(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Pull(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  vault                              show vault state
  unlock                             unlock the vault (creates it on first use)
  lock                               wipe the vault key from memory
  upload <path> [folderId]           upload a file
  vupload <path>                     encrypt and upload a file to the vault
  download <fileId> [version] [dest] download a file version (0 = current)
  versions <fileId>                  list versions, newest first
  delete <fileId> [purge]            move to trash, or delete permanently
  restore <fileId>                   restore from trash
  move <fileId> <folderId>           move to another folder
  pull                               pull new sync journal events
  exit | quit                        leave the program`

// runREPL reads commands line by line from reader and dispatches them to a.
// Command errors are printed and the loop goes on. The loop exits on EOF or
// when the user types "exit" or "quit". Commands that prompt for more input
// read from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("hc %s > ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "vault":
			cmdErr = a.VaultStatus(ctx, args)
		case "unlock":
			cmdErr = a.Unlock(ctx, args)
		case "lock":
			cmdErr = a.Lock(ctx, args)
		case "upload":
			cmdErr = a.Upload(ctx, args)
		case "vupload":
			cmdErr = a.VaultUpload(ctx, args)
		case "download":
			cmdErr = a.Download(ctx, args)
		case "versions":
			cmdErr = a.Versions(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "restore":
			cmdErr = a.Restore(ctx, args)
		case "move":
			cmdErr = a.Move(ctx, args)
		case "pull":
			cmdErr = a.Pull(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", describe(cmdErr))
		}
	}
}
